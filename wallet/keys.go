package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/payment"
	"github.com/vulpemventures/go-bitcoin/store"
)

const keyTypeMultisig = "multisig"

var (
	// ErrMasterMismatch is returned when importing a private key that does
	// not match any public cosigner key.
	ErrMasterMismatch = errors.New("private key does not match the wallet keys")
	// ErrNotPrivate is returned when a private key is expected.
	ErrNotPrivate = errors.New("key is not private")
)

// WalletKey is a stored key with its parsed key material. Multisig address
// keys have no key material of their own: their cosigner keys are listed
// in Cosigners, ordered by cosigner index.
type WalletKey struct {
	store.KeyRecord
	HD        *keys.HDKey
	Cosigners []*WalletKey
}

// NewKey derives the first unused address index of the (account, change)
// branch and stores its key.
func (w *Wallet) NewKey(ctx context.Context, account, change uint32) (*WalletKey, error) {
	const op = "wallet.NewKey"

	if err := w.checkBranch(account, change); err != nil {
		return nil, errs.New(errs.ErrConfig, op, err).WithWallet(w.Name)
	}
	if w.leafDepth() == 0 {
		return w.soleKey(ctx)
	}

	existing, err := w.store.FindKeys(ctx, store.KeyFilter{
		Wallet:     w.Name,
		Account:    store.Uint32(account),
		Change:     store.Uint32(change),
		CosignerID: store.Int(w.addressScope()),
		Depth:      store.Uint8(uint8(w.leafDepth())),
	})
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	taken := make(map[uint32]bool, len(existing))
	for _, k := range existing {
		taken[k.AddressIndex] = true
	}
	var index uint32
	for taken[index] {
		index++
	}

	rec, err := w.createKey(ctx, target{account, change, index}, keyName(change, index))
	if err != nil {
		return nil, wrapWallet(errs.ErrInvalidKey, op, w.Name, err)
	}
	w.log.WithFields(log.Fields{
		"path":    rec.Path,
		"address": rec.Address,
	}).Debug("new key")
	return w.walletKey(ctx, *rec)
}

// NewKeyChange derives a new change key of account.
func (w *Wallet) NewKeyChange(ctx context.Context, account uint32) (*WalletKey, error) {
	return w.NewKey(ctx, account, 1)
}

// GetKey returns the first unused key of the (account, change) branch,
// deriving a new one when all are used.
func (w *Wallet) GetKey(ctx context.Context, account, change uint32) (*WalletKey, error) {
	const op = "wallet.GetKey"

	if err := w.checkBranch(account, change); err != nil {
		return nil, errs.New(errs.ErrConfig, op, err).WithWallet(w.Name)
	}
	if w.leafDepth() == 0 {
		return w.soleKey(ctx)
	}
	unused, err := w.store.FindKeys(ctx, store.KeyFilter{
		Wallet:     w.Name,
		Account:    store.Uint32(account),
		Change:     store.Uint32(change),
		CosignerID: store.Int(w.addressScope()),
		Depth:      store.Uint8(uint8(w.leafDepth())),
		Used:       store.Bool(false),
	})
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	if len(unused) == 0 {
		return w.NewKey(ctx, account, change)
	}
	sort.Slice(unused, func(i, j int) bool {
		return unused[i].AddressIndex < unused[j].AddressIndex
	})
	return w.walletKey(ctx, unused[0])
}

// Key returns the wallet key with the given ID.
func (w *Wallet) Key(ctx context.Context, id uint64) (*WalletKey, error) {
	const op = "wallet.Key"

	rec, err := w.store.GetKey(ctx, id)
	if err != nil {
		return nil, wrapWallet(errs.ErrConfig, op, w.Name, err)
	}
	if rec.Wallet != w.Name {
		return nil, errs.Newf(errs.ErrConfig, op, "key %d belongs to another wallet", id).WithWallet(w.Name)
	}
	return w.walletKey(ctx, *rec)
}

// Keys returns the wallet keys selected by f. The Wallet field of f is
// ignored.
func (w *Wallet) Keys(ctx context.Context, f store.KeyFilter) ([]*WalletKey, error) {
	f.Wallet = w.Name
	recs, err := w.store.FindKeys(ctx, f)
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.Keys", w.Name, err)
	}
	out := make([]*WalletKey, 0, len(recs))
	for _, rec := range recs {
		k, err := w.walletKey(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// KeyForPath returns the address key at the full path, deriving and
// storing it when new.
func (w *Wallet) KeyForPath(ctx context.Context, path string) (*WalletKey, error) {
	const op = "wallet.KeyForPath"

	t, err := w.parseTarget(path)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, op, err).WithWallet(w.Name)
	}
	if w.leafDepth() == 0 {
		return w.soleKey(ctx)
	}
	full, err := w.pathOf(t, w.leafDepth())
	if err != nil {
		return nil, errs.New(errs.ErrConfig, op, err).WithWallet(w.Name)
	}

	found, err := w.store.FindKeys(ctx, store.KeyFilter{
		Wallet:     w.Name,
		CosignerID: store.Int(w.addressScope()),
		Path:       full.String(),
	})
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	if len(found) > 0 {
		return w.walletKey(ctx, found[0])
	}
	rec, err := w.createKey(ctx, t, keyName(t.change, t.index))
	if err != nil {
		return nil, wrapWallet(errs.ErrInvalidKey, op, w.Name, err)
	}
	return w.walletKey(ctx, *rec)
}

// Accounts returns the accounts the wallet has keys for.
func (w *Wallet) Accounts(ctx context.Context) ([]uint32, error) {
	recs, err := w.addressKeys(ctx, nil)
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.Accounts", w.Name, err)
	}
	seen := map[uint32]bool{}
	accounts := make([]uint32, 0)
	for _, k := range recs {
		if !seen[k.Account] {
			seen[k.Account] = true
			accounts = append(accounts, k.Account)
		}
	}
	if len(accounts) == 0 {
		accounts = append(accounts, w.fixedAccount())
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	return accounts, nil
}

// NewAccount opens the account following the last one in use and derives
// its first receiving key, named name.
func (w *Wallet) NewAccount(ctx context.Context, name string) (uint32, error) {
	const op = "wallet.NewAccount"

	if w.levelOf(pathAccount) < 0 {
		return 0, errs.New(errs.ErrConfig, op, ErrNoAccountLevel).WithWallet(w.Name)
	}
	if fixed, ok := w.accountBinding(); ok {
		return 0, errs.New(errs.ErrConfig, op, fmt.Errorf("%w: %d", ErrFixedAccount, fixed)).WithWallet(w.Name)
	}
	accounts, err := w.Accounts(ctx)
	if err != nil {
		return 0, err
	}
	next := accounts[len(accounts)-1] + 1

	if name == "" {
		name = fmt.Sprintf("account %d", next)
	}
	if _, err := w.createKey(ctx, target{account: next}, name); err != nil {
		return 0, wrapWallet(errs.ErrInvalidKey, op, w.Name, err)
	}
	w.log.WithField("account", next).Info("new account")
	return next, nil
}

// Addresses returns the addresses of the wallet, of account only if not
// nil, in creation order.
func (w *Wallet) Addresses(ctx context.Context, account *uint32) ([]string, error) {
	recs, err := w.addressKeys(ctx, account)
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.Addresses", w.Name, err)
	}
	out := make([]string, 0, len(recs))
	for _, k := range recs {
		out = append(out, k.Address)
	}
	return out, nil
}

// ImportMasterKey upgrades a public cosigner key to the given private key,
// together with every key derived from it. The private key may sit above
// the cosigner key in the key path.
func (w *Wallet) ImportMasterKey(ctx context.Context, key *keys.HDKey) error {
	const op = "wallet.ImportMasterKey"

	if key == nil || !key.IsPrivate() {
		return errs.New(errs.ErrInvalidKey, op, ErrNotPrivate).WithWallet(w.Name)
	}

	for _, c := range w.Cosigners {
		if c.Key.IsPrivate() {
			continue
		}
		priv, ok := w.matchCosigner(c, key)
		if !ok {
			continue
		}
		if err := w.upgradeCosigner(ctx, c, priv); err != nil {
			return wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
		}
		w.log.WithField("cosigner", c.Index).Info("master key imported")
		return nil
	}
	return errs.New(errs.ErrConfig, op, ErrMasterMismatch).WithWallet(w.Name)
}

func (w *Wallet) matchCosigner(c *Cosigner, key *keys.HDKey) (*keys.HDKey, bool) {
	k := *key
	inner := *key.Key
	k.Key = &inner
	k.Network = w.Network
	k.WitnessType = w.WitnessType
	k.Multisig = w.Scheme == SchemeMultisig
	k.KeyType = c.Key.KeyType

	priv := &k
	if c.Key.KeyType == keys.BIP32 && k.KeyType == keys.BIP32 && k.Depth < c.Key.Depth {
		path, err := w.pathOf(target{account: w.fixedAccount()}, int(c.Key.Depth))
		if err != nil {
			return nil, false
		}
		if priv, err = k.DerivePath(path[k.Depth:]); err != nil {
			return nil, false
		}
	}
	if !priv.Neuter().Equal(c.Key) {
		return nil, false
	}
	return priv, true
}

func (w *Wallet) upgradeCosigner(ctx context.Context, c *Cosigner, priv *keys.HDKey) error {
	c.Key = priv

	master, err := w.store.GetKey(ctx, c.KeyID)
	if err != nil {
		return err
	}
	master.Key = encodeKey(priv)
	master.IsPrivate = true
	if err := w.store.UpdateKey(ctx, master); err != nil {
		return err
	}

	if w.Scheme != SchemeSingle {
		derived, err := w.store.FindKeys(ctx, store.KeyFilter{
			Wallet:     w.Name,
			CosignerID: store.Int(w.scopeOf(c)),
			IsMaster:   store.Bool(false),
		})
		if err != nil {
			return err
		}
		for i := range derived {
			rec := &derived[i]
			if rec.IsPrivate || rec.Key == "" || int(rec.Depth) != w.leafDepth() {
				continue
			}
			k, err := w.derive(priv, target{rec.Account, rec.Change, rec.AddressIndex})
			if err != nil {
				return err
			}
			rec.Key = encodeKey(k)
			rec.IsPrivate = true
			if err := w.store.UpdateKey(ctx, rec); err != nil {
				return err
			}
		}
	}
	return w.store.UpdateWallet(ctx, w.record())
}

// createKey derives and stores the address key at t. Multisig keys are
// stored with one child key per cosigner.
func (w *Wallet) createKey(ctx context.Context, t target, name string) (*store.KeyRecord, error) {
	path, err := w.pathOf(t, w.leafDepth())
	if err != nil {
		return nil, err
	}
	rec := &store.KeyRecord{
		Wallet:       w.Name,
		Name:         name,
		Account:      t.account,
		Change:       t.change,
		AddressIndex: t.index,
		Depth:        uint8(w.leafDepth()),
		Path:         path.String(),
		CosignerID:   w.addressScope(),
		Network:      w.Network.Name,
		WitnessType:  string(w.WitnessType),
		CreatedAt:    w.now().UTC(),
	}

	if w.Scheme != SchemeMultisig {
		c := w.Cosigners[0]
		k, err := w.derive(c.Key, t)
		if err != nil {
			return nil, err
		}
		if rec.Address, err = w.singleAddress(k); err != nil {
			return nil, err
		}
		rec.Key = encodeKey(k)
		rec.KeyType = string(k.KeyType)
		rec.IsPrivate = k.IsPrivate()
		rec.ParentID = c.KeyID
		return rec, w.store.AddKey(ctx, rec)
	}

	children := make([]*store.KeyRecord, 0, len(w.Cosigners))
	pubkeys := make([]*btcec.PublicKey, 0, len(w.Cosigners))
	for _, c := range w.Cosigners {
		k, err := w.derive(c.Key, t)
		if err != nil {
			return nil, fmt.Errorf("cosigner %d: %w", c.Index, err)
		}
		pubkeys = append(pubkeys, k.PublicKey())
		child := *rec
		child.Name = fmt.Sprintf("cosigner %d %s", c.Index, name)
		child.CosignerID = c.Index
		child.ParentID = c.KeyID
		child.Key = encodeKey(k)
		child.KeyType = string(k.KeyType)
		child.IsPrivate = k.IsPrivate()
		children = append(children, &child)
	}

	p, err := payment.MultisigForWitnessType(pubkeys, w.SigsRequired, w.WitnessType, w.Network, w.SortKeys)
	if err != nil {
		return nil, err
	}
	addr, err := p.Address()
	if err != nil {
		return nil, err
	}
	if rec.RedeemScript, err = payment.MultisigScript(pubkeys, w.SigsRequired, w.SortKeys); err != nil {
		return nil, err
	}
	rec.Address = addr.String()
	rec.KeyType = keyTypeMultisig
	if err := w.store.AddKey(ctx, rec); err != nil {
		return nil, err
	}

	for i, child := range children {
		if err := w.store.AddKey(ctx, child); err != nil {
			return nil, err
		}
		if err := w.store.AddMultisigChild(ctx, &store.MultisigChildRecord{
			Wallet:        w.Name,
			ParentID:      rec.ID,
			ChildID:       child.ID,
			CosignerIndex: w.Cosigners[i].Index,
		}); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// soleKey returns the only address key of wallets whose key path has no
// levels, creating it for multisig wallets.
func (w *Wallet) soleKey(ctx context.Context) (*WalletKey, error) {
	recs, err := w.addressKeys(ctx, nil)
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.soleKey", w.Name, err)
	}
	if len(recs) > 0 {
		return w.walletKey(ctx, recs[0])
	}
	rec, err := w.createKey(ctx, target{}, keyName(0, 0))
	if err != nil {
		return nil, wrapWallet(errs.ErrInvalidKey, "wallet.soleKey", w.Name, err)
	}
	return w.walletKey(ctx, *rec)
}

// addressKeys returns the keys holding a wallet address, in creation
// order.
func (w *Wallet) addressKeys(ctx context.Context, account *uint32) ([]store.KeyRecord, error) {
	recs, err := w.store.FindKeys(ctx, store.KeyFilter{
		Wallet:     w.Name,
		Account:    account,
		CosignerID: store.Int(w.addressScope()),
	})
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, k := range recs {
		if k.Address != "" {
			out = append(out, k)
		}
	}
	return out, nil
}

func (w *Wallet) walletKey(ctx context.Context, rec store.KeyRecord) (*WalletKey, error) {
	k := &WalletKey{KeyRecord: rec}
	if rec.Key != "" {
		hd, err := w.decodeKey(rec.Key)
		if err != nil {
			return nil, wrapWallet(errs.ErrInvalidKey, "wallet.walletKey", w.Name, err)
		}
		if rec.KeyType == string(keys.BIP32) {
			hd.KeyType = keys.BIP32
		}
		k.HD = hd
	}
	if rec.KeyType != keyTypeMultisig {
		return k, nil
	}

	links, err := w.store.MultisigChildren(ctx, rec.ID)
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.walletKey", w.Name, err)
	}
	for _, link := range links {
		child, err := w.store.GetKey(ctx, link.ChildID)
		if err != nil {
			return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.walletKey", w.Name, err)
		}
		ck, err := w.walletKey(ctx, *child)
		if err != nil {
			return nil, err
		}
		k.Cosigners = append(k.Cosigners, ck)
	}
	return k, nil
}

func (w *Wallet) checkBranch(account, change uint32) error {
	if change > 1 {
		return ErrInvalidChange
	}
	if w.levelOf(pathAccount) < 0 {
		if account != 0 {
			return ErrNoAccountLevel
		}
		return nil
	}
	return w.checkAccount(account)
}

// parseTarget reads the account, change and index of a full key path.
func (w *Wallet) parseTarget(path string) (target, error) {
	var p keys.DerivationPath
	if strings.TrimSpace(path) != pathRoot {
		parsed, err := keys.ParseDerivationPath(path)
		if err != nil {
			return target{}, err
		}
		p = parsed
	}
	if len(p) != w.leafDepth() {
		return target{}, fmt.Errorf("%w: %s", ErrPathMismatch, path)
	}

	var t target
	if l := w.levelOf(pathAccount); l > 0 {
		if !keys.IsHardenedIndex(p[l-1]) {
			return target{}, fmt.Errorf("%w: account must be hardened", ErrPathMismatch)
		}
		t.account = p[l-1] - keys.HardenedKeyStart
	}
	if l := w.levelOf(pathChange); l > 0 {
		t.change = p[l-1]
	}
	if l := w.levelOf(pathAddressIndex); l > 0 {
		t.index = p[l-1]
	}

	expected, err := w.pathOf(t, w.leafDepth())
	if err != nil {
		return target{}, err
	}
	for i := range expected {
		if expected[i] != p[i] {
			return target{}, fmt.Errorf("%w: %s", ErrPathMismatch, path)
		}
	}
	if err := w.checkBranch(t.account, t.change); err != nil {
		return target{}, err
	}
	return t, nil
}

func keyName(change, index uint32) string {
	if change == 1 {
		return fmt.Sprintf("change address index %d", index)
	}
	return fmt.Sprintf("address index %d", index)
}
