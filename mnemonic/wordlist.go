package mnemonic

import (
	"fmt"
	"sort"

	"github.com/tyler-smith/go-bip39/wordlists"
	"golang.org/x/text/unicode/norm"
)

// Wordlist is a handle on one of the 2048-word BIP-39 lists.
type Wordlist struct {
	Name  string
	Words []string
	index map[string]int
}

const japaneseSeparator = "　"

var registry = map[string]*Wordlist{}

func init() {
	for name, words := range map[string][]string{
		"english":             wordlists.English,
		"japanese":            wordlists.Japanese,
		"spanish":             wordlists.Spanish,
		"french":              wordlists.French,
		"italian":             wordlists.Italian,
		"korean":              wordlists.Korean,
		"czech":               wordlists.Czech,
		"chinese_simplified":  wordlists.ChineseSimplified,
		"chinese_traditional": wordlists.ChineseTraditional,
	} {
		registry[name] = NewWordlist(name, words)
	}
}

// NewWordlist builds a handle over a custom list of 2048 words.
func NewWordlist(name string, words []string) *Wordlist {
	index := make(map[string]int, len(words))
	for i, w := range words {
		index[norm.NFKD.String(w)] = i
	}
	return &Wordlist{Name: name, Words: words, index: index}
}

// English is the default wordlist.
func English() *Wordlist {
	return registry["english"]
}

// Lookup returns the wordlist registered under name.
func Lookup(name string) (*Wordlist, error) {
	wl, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown wordlist %q", name)
	}
	return wl, nil
}

// Languages returns the names of the registered wordlists, sorted.
func Languages() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Index returns the position of word in the list.
func (wl *Wordlist) Index(word string) (int, bool) {
	i, ok := wl.index[norm.NFKD.String(word)]
	return i, ok
}

// ContainsAll reports whether every word is in the list.
func (wl *Wordlist) ContainsAll(words []string) bool {
	for _, w := range words {
		if _, ok := wl.Index(w); !ok {
			return false
		}
	}
	return true
}

func (wl *Wordlist) separator() string {
	if wl.Name == "japanese" {
		return japaneseSeparator
	}
	return " "
}
