// Package store defines the repository wallets persist their state in and
// an in memory implementation of it. The badgerstore subpackage persists
// the same records on disk.
package store

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when inserting a record whose key is taken.
	ErrDuplicate = errors.New("record already exists")
)

// MultisigCosignerID is the CosignerID of the keys holding a multisig
// address, whose children are the cosigner keys.
const MultisigCosignerID = -1

// CosignerRecord is one cosigner of a multisig wallet.
type CosignerRecord struct {
	Index int
	// Key is the extended key of the cosigner, private or public.
	Key     string
	Private bool
	// KeyID is the master key record of the cosigner.
	KeyID uint64
}

// WalletRecord holds the settings of a wallet.
type WalletRecord struct {
	Name         string
	Scheme       string
	WitnessType  string
	Encoding     string
	Network      string
	Networks     []string
	Purpose      uint32
	KeyPath      []string
	SigsRequired int
	SortKeys     bool
	CosignerID   int
	MainKeyID    uint64
	Cosigners    []CosignerRecord
	CreatedAt    time.Time
}

// KeyRecord is a key owned by a wallet. Key holds the extended key, or
// the WIF or public key hex of single keys. Multisig address keys have
// no key material: their RedeemScript binds the keys of their children.
type KeyRecord struct {
	ID           uint64 `badgerhold:"key"`
	Wallet       string `badgerhold:"index"`
	Name         string
	Account      uint32
	Change       uint32
	AddressIndex uint32
	Depth        uint8
	Path         string
	ParentID     uint64
	CosignerID   int
	Network      string
	WitnessType  string
	KeyType      string
	Key          string
	IsPrivate    bool
	IsMaster     bool
	Address      string
	RedeemScript []byte
	Balance      uint64
	Used         bool
	LatestTxID   string
	CreatedAt    time.Time
}

// MultisigChildRecord links a multisig address key to the key of one of
// its cosigners.
type MultisigChildRecord struct {
	ID            uint64 `badgerhold:"key"`
	Wallet        string `badgerhold:"index"`
	ParentID      uint64
	ChildID       uint64
	CosignerIndex int
}

// TxInputRecord is an input of a stored transaction.
type TxInputRecord struct {
	Index      int
	PrevTxID   string
	OutputN    uint32
	Sequence   uint32
	Value      uint64
	Address    string
	ScriptType string
	KeyID      uint64
}

// TxOutputRecord is an output of a stored transaction. KeyID is set when
// the output pays to a wallet key.
type TxOutputRecord struct {
	OutputN      uint32
	Value        uint64
	Script       []byte
	Address      string
	ScriptType   string
	KeyID        uint64
	Change       bool
	Spent        bool
	SpendingTxID string
}

// TxRecord is a transaction seen or created by a wallet.
type TxRecord struct {
	ID            string `badgerhold:"key"`
	Seq           uint64
	Wallet        string `badgerhold:"index"`
	TxID          string
	Account       uint32
	Network       string
	WitnessType   string
	Version       int32
	Locktime      uint32
	Status        string
	Confirmations uint32
	BlockHeight   uint32
	Date          time.Time
	Fee           uint64
	FeePerKB      uint64
	Size          int
	Verified      bool
	Raw           []byte
	Inputs        []TxInputRecord
	Outputs       []TxOutputRecord
}

// NetworkRecord is a network enabled in the store.
type NetworkRecord struct {
	Name         string
	Label        string
	CurrencyCode string
}

// Unspent is an unspent wallet output together with the state of its
// transaction.
type Unspent struct {
	TxRecordID    string
	TxID          string
	Status        string
	Confirmations uint32
	BlockHeight   uint32
	Account       uint32
	Network       string
	TxOutputRecord
}

// KeyFilter selects wallet keys. Nil fields match anything.
type KeyFilter struct {
	Wallet     string
	Account    *uint32
	Change     *uint32
	CosignerID *int
	Depth      *uint8
	IsMaster   *bool
	Used       *bool
	Network    string
	Address    string
	Path       string
}

// TxFilter selects wallet transactions. Empty fields match anything.
type TxFilter struct {
	Wallet  string
	TxID    string
	Status  []string
	Account *uint32
	Network string
}

// WalletStore is the repository of wallet records. Find methods return
// records ordered by insertion.
type WalletStore interface {
	AddWallet(ctx context.Context, w *WalletRecord) error
	GetWallet(ctx context.Context, name string) (*WalletRecord, error)
	UpdateWallet(ctx context.Context, w *WalletRecord) error
	// DeleteWallet removes a wallet with its keys and transactions.
	DeleteWallet(ctx context.Context, name string) error
	ListWallets(ctx context.Context) ([]WalletRecord, error)

	// AddKey inserts k and sets its ID.
	AddKey(ctx context.Context, k *KeyRecord) error
	GetKey(ctx context.Context, id uint64) (*KeyRecord, error)
	UpdateKey(ctx context.Context, k *KeyRecord) error
	FindKeys(ctx context.Context, f KeyFilter) ([]KeyRecord, error)

	// AddMultisigChild inserts c and sets its ID.
	AddMultisigChild(ctx context.Context, c *MultisigChildRecord) error
	MultisigChildren(ctx context.Context, parentID uint64) ([]MultisigChildRecord, error)

	// SaveTx inserts or replaces tx, assigning it an ID and a sequence
	// number when new.
	SaveTx(ctx context.Context, tx *TxRecord) error
	GetTx(ctx context.Context, id string) (*TxRecord, error)
	FindTxs(ctx context.Context, f TxFilter) ([]TxRecord, error)
	DeleteTx(ctx context.Context, id string) error
	ListUnspent(ctx context.Context, wallet string) ([]Unspent, error)

	SaveNetwork(ctx context.Context, n *NetworkRecord) error
	GetNetwork(ctx context.Context, name string) (*NetworkRecord, error)
	ListNetworks(ctx context.Context) ([]NetworkRecord, error)

	Close() error
}

// Match reports whether k is selected by the filter.
func (f KeyFilter) Match(k KeyRecord) bool {
	switch {
	case f.Wallet != "" && k.Wallet != f.Wallet,
		f.Account != nil && k.Account != *f.Account,
		f.Change != nil && k.Change != *f.Change,
		f.CosignerID != nil && k.CosignerID != *f.CosignerID,
		f.Depth != nil && k.Depth != *f.Depth,
		f.IsMaster != nil && k.IsMaster != *f.IsMaster,
		f.Used != nil && k.Used != *f.Used,
		f.Network != "" && k.Network != f.Network,
		f.Address != "" && k.Address != f.Address,
		f.Path != "" && k.Path != f.Path:
		return false
	}
	return true
}

// Match reports whether tx is selected by the filter.
func (f TxFilter) Match(tx TxRecord) bool {
	switch {
	case f.Wallet != "" && tx.Wallet != f.Wallet,
		f.TxID != "" && tx.TxID != f.TxID,
		f.Account != nil && tx.Account != *f.Account,
		f.Network != "" && tx.Network != f.Network:
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, s := range f.Status {
		if tx.Status == s {
			return true
		}
	}
	return false
}

// UnspentOf returns the outputs of txs paying to a wallet key and not
// spent yet.
func UnspentOf(txs []TxRecord) []Unspent {
	out := make([]Unspent, 0)
	for _, tx := range txs {
		for _, o := range tx.Outputs {
			if o.KeyID == 0 || o.Spent {
				continue
			}
			out = append(out, Unspent{
				TxRecordID:     tx.ID,
				TxID:           tx.TxID,
				Status:         tx.Status,
				Confirmations:  tx.Confirmations,
				BlockHeight:    tx.BlockHeight,
				Account:        tx.Account,
				Network:        tx.Network,
				TxOutputRecord: o,
			})
		}
	}
	return out
}

// Uint32 returns a pointer to v, for filters.
func Uint32(v uint32) *uint32 { return &v }

// Int returns a pointer to v, for filters.
func Int(v int) *int { return &v }

// Uint8 returns a pointer to v, for filters.
func Uint8(v uint8) *uint8 { return &v }

// Bool returns a pointer to v, for filters.
func Bool(v bool) *bool { return &v }

func sortKeys(list []KeyRecord) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

// SortTxs orders transactions by insertion.
func SortTxs(list []TxRecord) {
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
}
