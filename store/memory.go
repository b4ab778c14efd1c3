package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a WalletStore keeping records in maps. It is safe for
// concurrent use. Records are copied in and out.
type MemoryStore struct {
	lock sync.RWMutex

	wallets  map[string]WalletRecord
	keys     map[uint64]KeyRecord
	children map[uint64]MultisigChildRecord
	txs      map[string]TxRecord
	networks map[string]NetworkRecord

	keySeq   uint64
	childSeq uint64
	txSeq    uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[string]WalletRecord),
		keys:     make(map[uint64]KeyRecord),
		children: make(map[uint64]MultisigChildRecord),
		txs:      make(map[string]TxRecord),
		networks: make(map[string]NetworkRecord),
	}
}

func (s *MemoryStore) AddWallet(_ context.Context, w *WalletRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.wallets[w.Name]; ok {
		return fmt.Errorf("wallet %s: %w", w.Name, ErrDuplicate)
	}
	s.wallets[w.Name] = copyWallet(*w)
	return nil
}

func (s *MemoryStore) GetWallet(_ context.Context, name string) (*WalletRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	w, ok := s.wallets[name]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", name, ErrNotFound)
	}
	w = copyWallet(w)
	return &w, nil
}

func (s *MemoryStore) UpdateWallet(_ context.Context, w *WalletRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.wallets[w.Name]; !ok {
		return fmt.Errorf("wallet %s: %w", w.Name, ErrNotFound)
	}
	s.wallets[w.Name] = copyWallet(*w)
	return nil
}

func (s *MemoryStore) DeleteWallet(_ context.Context, name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.wallets[name]; !ok {
		return fmt.Errorf("wallet %s: %w", name, ErrNotFound)
	}
	delete(s.wallets, name)
	for id, k := range s.keys {
		if k.Wallet == name {
			delete(s.keys, id)
		}
	}
	for id, c := range s.children {
		if c.Wallet == name {
			delete(s.children, id)
		}
	}
	for id, tx := range s.txs {
		if tx.Wallet == name {
			delete(s.txs, id)
		}
	}
	return nil
}

func (s *MemoryStore) ListWallets(context.Context) ([]WalletRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]WalletRecord, 0, len(s.wallets))
	for _, w := range s.wallets {
		list = append(list, copyWallet(w))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *MemoryStore) AddKey(_ context.Context, k *KeyRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.keySeq++
	k.ID = s.keySeq
	s.keys[k.ID] = copyKey(*k)
	return nil
}

func (s *MemoryStore) GetKey(_ context.Context, id uint64) (*KeyRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	k, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("key %d: %w", id, ErrNotFound)
	}
	k = copyKey(k)
	return &k, nil
}

func (s *MemoryStore) UpdateKey(_ context.Context, k *KeyRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.keys[k.ID]; !ok {
		return fmt.Errorf("key %d: %w", k.ID, ErrNotFound)
	}
	s.keys[k.ID] = copyKey(*k)
	return nil
}

func (s *MemoryStore) FindKeys(_ context.Context, f KeyFilter) ([]KeyRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]KeyRecord, 0)
	for _, k := range s.keys {
		if f.Match(k) {
			list = append(list, copyKey(k))
		}
	}
	sortKeys(list)
	return list, nil
}

func (s *MemoryStore) AddMultisigChild(_ context.Context, c *MultisigChildRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.childSeq++
	c.ID = s.childSeq
	s.children[c.ID] = *c
	return nil
}

func (s *MemoryStore) MultisigChildren(_ context.Context, parentID uint64) ([]MultisigChildRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]MultisigChildRecord, 0)
	for _, c := range s.children {
		if c.ParentID == parentID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CosignerIndex < list[j].CosignerIndex
	})
	return list, nil
}

func (s *MemoryStore) SaveTx(_ context.Context, tx *TxRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if old, ok := s.txs[tx.ID]; ok {
		tx.Seq = old.Seq
	} else {
		s.txSeq++
		tx.Seq = s.txSeq
	}
	s.txs[tx.ID] = copyTx(*tx)
	return nil
}

func (s *MemoryStore) GetTx(_ context.Context, id string) (*TxRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	tx = copyTx(tx)
	return &tx, nil
}

func (s *MemoryStore) FindTxs(_ context.Context, f TxFilter) ([]TxRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]TxRecord, 0)
	for _, tx := range s.txs {
		if f.Match(tx) {
			list = append(list, copyTx(tx))
		}
	}
	SortTxs(list)
	return list, nil
}

func (s *MemoryStore) DeleteTx(_ context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

func (s *MemoryStore) ListUnspent(ctx context.Context, wallet string) ([]Unspent, error) {
	txs, err := s.FindTxs(ctx, TxFilter{Wallet: wallet})
	if err != nil {
		return nil, err
	}
	return UnspentOf(txs), nil
}

func (s *MemoryStore) SaveNetwork(_ context.Context, n *NetworkRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.networks[n.Name] = *n
	return nil
}

func (s *MemoryStore) GetNetwork(_ context.Context, name string) (*NetworkRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	n, ok := s.networks[name]
	if !ok {
		return nil, fmt.Errorf("network %s: %w", name, ErrNotFound)
	}
	return &n, nil
}

func (s *MemoryStore) ListNetworks(context.Context) ([]NetworkRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]NetworkRecord, 0, len(s.networks))
	for _, n := range s.networks {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func copyWallet(w WalletRecord) WalletRecord {
	w.Networks = append([]string(nil), w.Networks...)
	w.KeyPath = append([]string(nil), w.KeyPath...)
	w.Cosigners = append([]CosignerRecord(nil), w.Cosigners...)
	return w
}

func copyKey(k KeyRecord) KeyRecord {
	k.RedeemScript = append([]byte(nil), k.RedeemScript...)
	return k
}

func copyTx(tx TxRecord) TxRecord {
	tx.Raw = append([]byte(nil), tx.Raw...)
	tx.Inputs = append([]TxInputRecord(nil), tx.Inputs...)
	outputs := make([]TxOutputRecord, 0, len(tx.Outputs))
	for _, o := range tx.Outputs {
		o.Script = append([]byte(nil), o.Script...)
		outputs = append(outputs, o)
	}
	tx.Outputs = outputs
	return tx
}
