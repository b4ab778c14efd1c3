// Package wallet implements an HD wallet engine on top of a WalletStore and
// a chain Service: key trees following BIP-44/45/48/49/84/86, multisig
// wallets over several cosigner keys, UTXO bookkeeping, input selection and
// the transaction lifecycle from creation to confirmation.
//
// A Wallet is not safe for concurrent use. Open several handles on the same
// store instead.
package wallet

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/chain"
	"github.com/vulpemventures/go-bitcoin/config"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/store"
	"github.com/vulpemventures/go-bitcoin/store/badgerstore"
)

// MaxCosigners is the largest number of keys of a standard multisig
// script.
const MaxCosigners = 15

var (
	// ErrInvalidName is returned for empty or numeric wallet names.
	ErrInvalidName = errors.New("wallet name must be non empty and not a number")
	// ErrWalletExists is returned when creating a wallet whose name is taken.
	ErrWalletExists = errors.New("wallet already exists")
	// ErrWalletNotFound is returned when opening an unknown wallet.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrNullStore is returned when no WalletStore is given.
	ErrNullStore = errors.New("wallet store must not be null")
	// ErrNoChainService is returned by operations reaching the chain on
	// wallets opened without a chain service.
	ErrNoChainService = errors.New("wallet has no chain service")
	// ErrTooFewCosigners is returned for multisig wallets with less than 2
	// keys.
	ErrTooFewCosigners = errors.New("multisig wallets need at least 2 keys")
	// ErrTooManyCosigners is returned for multisig wallets above
	// MaxCosigners keys.
	ErrTooManyCosigners = fmt.Errorf("multisig wallets support at most %d keys", MaxCosigners)
	// ErrInvalidSigsRequired is returned when the number of required
	// signatures is not in [1, number of keys].
	ErrInvalidSigsRequired = errors.New("required signatures out of range")
	// ErrSchemeMismatch is returned when the keys given can't serve the
	// requested scheme.
	ErrSchemeMismatch = errors.New("keys do not match the wallet scheme")
	// ErrNetworkMismatch is returned when keys belong to different networks.
	ErrNetworkMismatch = errors.New("keys belong to different networks")
)

// Scheme is the way a wallet holds its keys.
type Scheme string

const (
	// SchemeBIP32 wallets derive their keys from one extended key.
	SchemeBIP32 Scheme = "bip32"
	// SchemeSingle wallets hold one plain key and one address.
	SchemeSingle Scheme = "single"
	// SchemeMultisig wallets derive m-of-n addresses from several
	// cosigner keys.
	SchemeMultisig Scheme = "multisig"
)

// KeyInput is a key given at wallet creation. Either Key is set, or Text
// holds a key in any format keys.ParseAuto understands.
type KeyInput struct {
	Key  *keys.HDKey
	Text string
	// Passphrase decrypts BIP-38 keys.
	Passphrase string
}

// Cosigner is one of the keys of a wallet, private or public. Wallets
// other than multisig have exactly one.
type Cosigner struct {
	Index int
	Key   *keys.HDKey
	KeyID uint64
}

// Deps are the services a wallet works with. Chain may be nil for offline
// wallets, Context defaults to config.Default().
type Deps struct {
	Context *config.Context
	Store   store.WalletStore
	Chain   chain.Service
}

// CreateOpts is the struct given to Create.
type CreateOpts struct {
	Name string
	// Keys of the wallet. A random master key is generated when empty,
	// except for multisig wallets.
	Keys []KeyInput
	// Network defaults to the one of the Context.
	Network *network.Network
	// WitnessType defaults to the one of an extended key, or segwit.
	WitnessType network.WitnessType
	// Scheme defaults to multisig for several keys, bip32 for an extended
	// key and single otherwise.
	Scheme Scheme
	// SigsRequired defaults to the number of keys.
	SigsRequired int
	// SortKeys defaults to true.
	SortKeys *bool
	// Purpose and KeyPath default to the BIP-43 template matching the
	// scheme and witness type. A Purpose of 0 means default, KeyPath
	// entries are template names or literal indexes.
	Purpose uint32
	KeyPath []string
	// CosignerID is the index of the key this wallet acts as. It defaults
	// to the first private key.
	CosignerID *int
	// Password is the BIP-39 password of mnemonic keys.
	Password string
}

// Wallet is an HD wallet bound to a store and a chain service.
type Wallet struct {
	Name         string
	Scheme       Scheme
	WitnessType  network.WitnessType
	Encoding     address.Encoding
	Network      *network.Network
	Purpose      uint32
	KeyPath      []string
	SigsRequired int
	SortKeys     bool
	CosignerID   int
	Cosigners    []*Cosigner
	CreatedAt    time.Time

	ctx   *config.Context
	store store.WalletStore
	chain chain.Service
	log   *log.Entry
	now   func() time.Time
}

// NewStore returns the store selected by the Context: an in memory one, or
// a badger database in the data directory.
func NewStore(cfg *config.Context) (store.WalletStore, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	switch cfg.DBType {
	case config.DBBadger:
		s, err := badgerstore.New(filepath.Join(cfg.DataDir, "db"), cfg.Logger)
		if err != nil {
			return nil, errs.New(errs.ErrConfig, "wallet.NewStore", err)
		}
		return s, nil
	case config.DBMemory, "":
		return store.NewMemoryStore(), nil
	}
	return nil, errs.Newf(errs.ErrConfig, "wallet.NewStore", "unknown db type %q", cfg.DBType)
}

func (d Deps) validate() (Deps, error) {
	if d.Store == nil {
		return d, ErrNullStore
	}
	if d.Context == nil {
		d.Context = config.Default()
	}
	return d, nil
}

func (o CreateOpts) validate() error {
	name := strings.TrimSpace(o.Name)
	if name == "" {
		return ErrInvalidName
	}
	if _, err := strconv.ParseInt(name, 10, 64); err == nil {
		return ErrInvalidName
	}
	switch o.Scheme {
	case "", SchemeBIP32, SchemeSingle, SchemeMultisig:
	default:
		return fmt.Errorf("unknown scheme %q", o.Scheme)
	}
	if o.WitnessType != "" {
		if _, err := network.ParseWitnessType(string(o.WitnessType)); err != nil {
			return err
		}
	}
	return nil
}

// Create makes a new wallet from opts and persists it.
func Create(ctx context.Context, opts CreateOpts, deps Deps) (*Wallet, error) {
	const op = "wallet.Create"

	deps, err := deps.validate()
	if err != nil {
		return nil, errs.New(errs.ErrConfig, op, err)
	}
	if err := opts.validate(); err != nil {
		return nil, errs.New(errs.ErrConfig, op, err).WithWallet(opts.Name)
	}

	_, err = deps.Store.GetWallet(ctx, opts.Name)
	switch {
	case err == nil:
		return nil, errs.New(errs.ErrConfig, op, ErrWalletExists).WithWallet(opts.Name)
	case !errors.Is(err, store.ErrNotFound):
		return nil, errs.Wrap(errs.ErrInternalConsistency, op, err)
	}

	w, err := newWallet(opts, deps)
	if err != nil {
		return nil, wrapWallet(errs.ErrConfig, op, opts.Name, err)
	}
	if err := w.persist(ctx); err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}

	w.log.WithFields(log.Fields{
		"scheme":       w.Scheme,
		"witness_type": w.WitnessType,
		"network":      w.Network.Name,
	}).Info("wallet created")
	return w, nil
}

// Open loads the wallet with the given name.
func Open(ctx context.Context, name string, deps Deps) (*Wallet, error) {
	const op = "wallet.Open"

	deps, err := deps.validate()
	if err != nil {
		return nil, errs.New(errs.ErrConfig, op, err)
	}
	rec, err := deps.Store.GetWallet(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.New(errs.ErrConfig, op, ErrWalletNotFound).WithWallet(name)
		}
		return nil, wrapWallet(errs.ErrInternalConsistency, op, name, err)
	}

	w, err := fromRecord(rec, deps)
	if err != nil {
		return nil, wrapWallet(errs.ErrInvalidKey, op, name, err)
	}
	return w, nil
}

// Delete removes the wallet with the given name together with its keys and
// transactions.
func Delete(ctx context.Context, name string, deps Deps) error {
	const op = "wallet.Delete"

	deps, err := deps.validate()
	if err != nil {
		return errs.New(errs.ErrConfig, op, err)
	}
	if err := deps.Store.DeleteWallet(ctx, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.New(errs.ErrConfig, op, ErrWalletNotFound).WithWallet(name)
		}
		return wrapWallet(errs.ErrInternalConsistency, op, name, err)
	}
	deps.Context.Logger.WithField("wallet", name).Info("wallet deleted")
	return nil
}

func newWallet(opts CreateOpts, deps Deps) (*Wallet, error) {
	net := opts.Network
	if net == nil {
		net = deps.Context.Network
	}
	if net == nil {
		net = network.Bitcoin
	}

	hdKeys, err := parseKeyInputs(opts, net, deps.Context)
	if err != nil {
		return nil, err
	}
	for _, k := range hdKeys {
		if k.Network != hdKeys[0].Network {
			return nil, ErrNetworkMismatch
		}
	}
	net = hdKeys[0].Network

	witnessType := opts.WitnessType
	if witnessType == "" {
		witnessType = network.Segwit
		if first := opts.Keys; len(first) > 0 && hdKeys[0].KeyType == keys.BIP32 && isExtended(first[0]) {
			witnessType = hdKeys[0].WitnessType
		}
	}
	if !net.SupportsWitnessType(witnessType) {
		return nil, fmt.Errorf("witness type %s not supported on %s", witnessType, net.Name)
	}

	scheme := opts.Scheme
	if scheme == "" {
		switch {
		case len(hdKeys) > 1:
			scheme = SchemeMultisig
		case hdKeys[0].KeyType == keys.BIP32:
			scheme = SchemeBIP32
		default:
			scheme = SchemeSingle
		}
	}

	w := &Wallet{
		Name:        strings.TrimSpace(opts.Name),
		Scheme:      scheme,
		WitnessType: witnessType,
		Encoding:    encodingFor(witnessType),
		Network:     net,
		SortKeys:    true,
		CreatedAt:   time.Now().UTC(),
	}
	if opts.SortKeys != nil {
		w.SortKeys = *opts.SortKeys
	}
	w.bind(deps)

	switch scheme {
	case SchemeMultisig:
		if len(hdKeys) < 2 {
			return nil, ErrTooFewCosigners
		}
		if len(hdKeys) > MaxCosigners {
			return nil, ErrTooManyCosigners
		}
		if witnessType == network.Taproot {
			return nil, fmt.Errorf("%w: taproot multisig is not supported", ErrSchemeMismatch)
		}
		w.SigsRequired = opts.SigsRequired
		if w.SigsRequired == 0 {
			w.SigsRequired = len(hdKeys)
		}
		if w.SigsRequired < 1 || w.SigsRequired > len(hdKeys) {
			return nil, ErrInvalidSigsRequired
		}
	default:
		if len(hdKeys) != 1 {
			return nil, fmt.Errorf("%w: %s wallets take one key", ErrSchemeMismatch, scheme)
		}
		if scheme == SchemeBIP32 && hdKeys[0].KeyType != keys.BIP32 {
			return nil, fmt.Errorf("%w: bip32 wallets need an extended key", ErrSchemeMismatch)
		}
		w.SigsRequired = 1
	}

	singleKeys := 0
	for _, k := range hdKeys {
		if k.KeyType == keys.Single || scheme == SchemeSingle {
			singleKeys++
		}
	}
	if singleKeys > 0 && singleKeys != len(hdKeys) {
		return nil, fmt.Errorf("%w: extended and plain keys can't be mixed", ErrSchemeMismatch)
	}

	w.Purpose = opts.Purpose
	if singleKeys > 0 {
		w.Purpose = 0
	} else if w.Purpose == 0 {
		w.Purpose = defaultPurpose(scheme, witnessType)
	}
	w.KeyPath = opts.KeyPath
	if singleKeys > 0 {
		w.KeyPath = []string{pathRoot}
	} else if len(w.KeyPath) == 0 {
		w.KeyPath = defaultKeyPath(w.Purpose)
	}
	if err := validateKeyPath(w.KeyPath); err != nil {
		return nil, err
	}

	w.CosignerID = -1
	for i, k := range hdKeys {
		k.Network = net
		k.WitnessType = witnessType
		k.Multisig = scheme == SchemeMultisig
		if scheme == SchemeSingle {
			k.KeyType = keys.Single
		}
		if err := w.checkDerivable(k); err != nil {
			return nil, err
		}
		w.Cosigners = append(w.Cosigners, &Cosigner{Index: i, Key: k})
		if w.CosignerID < 0 && k.IsPrivate() {
			w.CosignerID = i
		}
	}
	if opts.CosignerID != nil {
		w.CosignerID = *opts.CosignerID
	}
	if w.CosignerID < 0 || w.CosignerID >= len(w.Cosigners) {
		w.CosignerID = 0
	}
	return w, nil
}

func parseKeyInputs(opts CreateOpts, net *network.Network, cfg *config.Context) ([]*keys.HDKey, error) {
	if len(opts.Keys) == 0 {
		if opts.Scheme == SchemeMultisig {
			return nil, ErrTooFewCosigners
		}
		r := cfg.Rand
		if r == nil {
			r = rand.Reader
		}
		seed := make([]byte, 32)
		if _, err := io.ReadFull(r, seed); err != nil {
			return nil, err
		}
		wt := opts.WitnessType
		if wt == "" {
			wt = network.Segwit
		}
		master, err := keys.NewMasterKey(seed, net, wt, false)
		if err != nil {
			return nil, err
		}
		return []*keys.HDKey{master}, nil
	}

	out := make([]*keys.HDKey, 0, len(opts.Keys))
	for i, in := range opts.Keys {
		if in.Key != nil {
			k := *in.Key
			key := *in.Key.Key
			k.Key = &key
			out = append(out, &k)
			continue
		}
		k, err := keys.ParseAuto(in.Text, net, keys.ParseOpts{
			Passphrase:  in.Passphrase,
			Password:    opts.Password,
			WitnessType: opts.WitnessType,
			Multisig:    opts.Scheme == SchemeMultisig || len(opts.Keys) > 1,
		})
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

func isExtended(in KeyInput) bool {
	if in.Key != nil {
		return in.Key.KeyType == keys.BIP32
	}
	m, err := keys.Detect(in.Text, nil)
	return err == nil && m.Kind == keys.ExtendedKey
}

func fromRecord(rec *store.WalletRecord, deps Deps) (*Wallet, error) {
	net, err := network.ByName(rec.Network)
	if err != nil {
		return nil, err
	}
	w := &Wallet{
		Name:         rec.Name,
		Scheme:       Scheme(rec.Scheme),
		WitnessType:  network.WitnessType(rec.WitnessType),
		Encoding:     address.Encoding(rec.Encoding),
		Network:      net,
		Purpose:      rec.Purpose,
		KeyPath:      append([]string(nil), rec.KeyPath...),
		SigsRequired: rec.SigsRequired,
		SortKeys:     rec.SortKeys,
		CosignerID:   rec.CosignerID,
		CreatedAt:    rec.CreatedAt,
	}
	w.bind(deps)

	for _, c := range rec.Cosigners {
		k, err := w.decodeKey(c.Key)
		if err != nil {
			return nil, fmt.Errorf("cosigner %d: %w", c.Index, err)
		}
		w.Cosigners = append(w.Cosigners, &Cosigner{Index: c.Index, Key: k, KeyID: c.KeyID})
	}
	return w, nil
}

func (w *Wallet) bind(deps Deps) {
	w.ctx = deps.Context
	w.store = deps.Store
	w.chain = deps.Chain
	logger := w.ctx.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	w.log = logger.WithField("wallet", w.Name)
	w.now = time.Now
}

// persist stores a newly built wallet and the master key of every
// cosigner.
func (w *Wallet) persist(ctx context.Context) error {
	rec := w.record()
	if err := w.store.AddWallet(ctx, rec); err != nil {
		return err
	}
	if err := w.store.SaveNetwork(ctx, &store.NetworkRecord{
		Name:         w.Network.Name,
		Label:        w.Network.Label,
		CurrencyCode: w.Network.CurrencyCode,
	}); err != nil {
		return err
	}

	for _, c := range w.Cosigners {
		k, err := w.masterRecord(c)
		if err != nil {
			return err
		}
		if err := w.store.AddKey(ctx, k); err != nil {
			return err
		}
		c.KeyID = k.ID
	}
	return w.store.UpdateWallet(ctx, w.record())
}

func (w *Wallet) masterRecord(c *Cosigner) (*store.KeyRecord, error) {
	depth := int(c.Key.Depth)
	if depth > len(w.KeyPath)-1 {
		depth = len(w.KeyPath) - 1
	}
	path, err := w.pathOf(target{account: w.fixedAccount()}, depth)
	if err != nil {
		return nil, err
	}

	rec := &store.KeyRecord{
		Wallet:      w.Name,
		Name:        "master",
		Depth:       c.Key.Depth,
		Path:        path.String(),
		CosignerID:  w.scopeOf(c),
		Network:     w.Network.Name,
		WitnessType: string(w.WitnessType),
		KeyType:     string(c.Key.KeyType),
		Key:         encodeKey(c.Key),
		IsPrivate:   c.Key.IsPrivate(),
		IsMaster:    true,
		CreatedAt:   w.now().UTC(),
	}
	if w.Scheme == SchemeMultisig {
		rec.Name = fmt.Sprintf("cosigner %d", c.Index)
	}
	if w.Scheme == SchemeSingle {
		addr, err := w.singleAddress(c.Key)
		if err != nil {
			return nil, err
		}
		rec.Address = addr
	}
	return rec, nil
}

func (w *Wallet) record() *store.WalletRecord {
	rec := &store.WalletRecord{
		Name:         w.Name,
		Scheme:       string(w.Scheme),
		WitnessType:  string(w.WitnessType),
		Encoding:     string(w.Encoding),
		Network:      w.Network.Name,
		Networks:     []string{w.Network.Name},
		Purpose:      w.Purpose,
		KeyPath:      append([]string(nil), w.KeyPath...),
		SigsRequired: w.SigsRequired,
		SortKeys:     w.SortKeys,
		CosignerID:   w.CosignerID,
		CreatedAt:    w.CreatedAt,
	}
	for _, c := range w.Cosigners {
		rec.Cosigners = append(rec.Cosigners, store.CosignerRecord{
			Index:   c.Index,
			Key:     encodeKey(c.Key),
			Private: c.Key.IsPrivate(),
			KeyID:   c.KeyID,
		})
	}
	if len(w.Cosigners) > 0 {
		rec.MainKeyID = w.Cosigners[0].KeyID
		if w.Scheme == SchemeMultisig {
			rec.MainKeyID = w.Cosigners[w.CosignerID].KeyID
		}
	}
	return rec
}

// scopeOf returns the CosignerID of the address keys derived from c.
func (w *Wallet) scopeOf(c *Cosigner) int {
	if w.Scheme == SchemeMultisig {
		return c.Index
	}
	return 0
}

// addressScope returns the CosignerID of the keys holding the wallet
// addresses.
func (w *Wallet) addressScope() int {
	if w.Scheme == SchemeMultisig {
		return store.MultisigCosignerID
	}
	return 0
}

// encodeKey serializes a key for the store: extended keys in their
// Base58 form, plain keys as WIF or public key hex.
func encodeKey(k *keys.HDKey) string {
	if k.KeyType == keys.Single {
		if k.IsPrivate() {
			wif, err := k.WIF()
			if err == nil {
				return wif
			}
		}
		return k.PublicHex()
	}
	return k.String()
}

func (w *Wallet) decodeKey(text string) (*keys.HDKey, error) {
	k, err := keys.ParseAuto(text, w.Network, keys.ParseOpts{
		WitnessType: w.WitnessType,
		Multisig:    w.Scheme == SchemeMultisig,
	})
	if err != nil {
		return nil, err
	}
	k.Network = w.Network
	k.WitnessType = w.WitnessType
	k.Multisig = w.Scheme == SchemeMultisig
	if w.Scheme == SchemeSingle {
		k.KeyType = keys.Single
	}
	return k, nil
}

func encodingFor(wt network.WitnessType) address.Encoding {
	switch wt {
	case network.Segwit:
		return address.Bech32Encoding
	case network.Taproot:
		return address.Bech32mEncoding
	}
	return address.Base58Encoding
}

// wrapWallet classifies err under kind, unless it carries one already, and
// tags it with the wallet name.
func wrapWallet(kind *errs.Kind, op, name string, err error) error {
	if e, ok := errs.As(err); ok {
		if e.Wallet == "" {
			e.Wallet = name
		}
		return err
	}
	if errs.KindOf(err) != nil {
		return err
	}
	return errs.New(kind, op, err).WithWallet(name)
}
