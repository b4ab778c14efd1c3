// Package badgerstore persists wallet records in a badger database through
// badgerhold.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/go-bitcoin/store"
)

const seqBandwidth = 100

// Store is a store.WalletStore on top of badgerhold. Key and multisig
// child IDs start from 1, zero marks an unset reference.
type Store struct {
	db       *badgerhold.Store
	keySeq   *badger.Sequence
	childSeq *badger.Sequence
	txSeq    *badger.Sequence
}

// New opens the database in dir, or an in memory one if dir is empty.
// A nil logger silences badger.
func New(dir string, logger *log.Entry) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.Compression = options.ZSTD
	}
	opts.Logger = nil
	if logger != nil {
		opts.Logger = logger
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: seqBandwidth,
		Options:          opts,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	s := &Store{db: db}
	seqs := map[string]**badger.Sequence{
		"keyseq":   &s.keySeq,
		"childseq": &s.childSeq,
		"txseq":    &s.txSeq,
	}
	for name, seq := range seqs {
		if *seq, err = db.Badger().GetSequence([]byte(name), seqBandwidth); err != nil {
			s.Close()
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *Store) AddWallet(_ context.Context, w *store.WalletRecord) error {
	if err := s.db.Insert(w.Name, w); err != nil {
		return mapErr("wallet "+w.Name, err)
	}
	return nil
}

func (s *Store) GetWallet(_ context.Context, name string) (*store.WalletRecord, error) {
	var w store.WalletRecord
	if err := s.db.Get(name, &w); err != nil {
		return nil, mapErr("wallet "+name, err)
	}
	return &w, nil
}

func (s *Store) UpdateWallet(_ context.Context, w *store.WalletRecord) error {
	if err := s.db.Update(w.Name, w); err != nil {
		return mapErr("wallet "+w.Name, err)
	}
	return nil
}

func (s *Store) DeleteWallet(_ context.Context, name string) error {
	if err := s.db.Delete(name, store.WalletRecord{}); err != nil {
		return mapErr("wallet "+name, err)
	}
	for _, dataType := range []interface{}{
		&store.KeyRecord{}, &store.MultisigChildRecord{}, &store.TxRecord{},
	} {
		if err := s.db.DeleteMatching(dataType, byWallet(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListWallets(context.Context) ([]store.WalletRecord, error) {
	var list []store.WalletRecord
	if err := s.db.Find(&list, nil); err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *Store) AddKey(_ context.Context, k *store.KeyRecord) error {
	id, err := nextID(s.keySeq)
	if err != nil {
		return err
	}
	k.ID = id
	return s.db.Insert(id, k)
}

func (s *Store) GetKey(_ context.Context, id uint64) (*store.KeyRecord, error) {
	var k store.KeyRecord
	if err := s.db.Get(id, &k); err != nil {
		return nil, mapErr(fmt.Sprintf("key %d", id), err)
	}
	return &k, nil
}

func (s *Store) UpdateKey(_ context.Context, k *store.KeyRecord) error {
	if err := s.db.Update(k.ID, k); err != nil {
		return mapErr(fmt.Sprintf("key %d", k.ID), err)
	}
	return nil
}

func (s *Store) FindKeys(_ context.Context, f store.KeyFilter) ([]store.KeyRecord, error) {
	var found []store.KeyRecord
	if err := s.db.Find(&found, byWallet(f.Wallet)); err != nil {
		return nil, err
	}
	list := make([]store.KeyRecord, 0, len(found))
	for _, k := range found {
		if f.Match(k) {
			list = append(list, k)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *Store) AddMultisigChild(_ context.Context, c *store.MultisigChildRecord) error {
	id, err := nextID(s.childSeq)
	if err != nil {
		return err
	}
	c.ID = id
	return s.db.Insert(id, c)
}

func (s *Store) MultisigChildren(_ context.Context, parentID uint64) ([]store.MultisigChildRecord, error) {
	var list []store.MultisigChildRecord
	if err := s.db.Find(&list, badgerhold.Where("ParentID").Eq(parentID)); err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CosignerIndex < list[j].CosignerIndex
	})
	return list, nil
}

func (s *Store) SaveTx(_ context.Context, tx *store.TxRecord) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	var old store.TxRecord
	err := s.db.Get(tx.ID, &old)
	switch {
	case err == nil:
		tx.Seq = old.Seq
	case errors.Is(err, badgerhold.ErrNotFound):
		seq, err := s.txSeq.Next()
		if err != nil {
			return err
		}
		tx.Seq = seq
	default:
		return err
	}
	return s.db.Upsert(tx.ID, tx)
}

func (s *Store) GetTx(_ context.Context, id string) (*store.TxRecord, error) {
	var tx store.TxRecord
	if err := s.db.Get(id, &tx); err != nil {
		return nil, mapErr("transaction "+id, err)
	}
	return &tx, nil
}

func (s *Store) FindTxs(_ context.Context, f store.TxFilter) ([]store.TxRecord, error) {
	var found []store.TxRecord
	if err := s.db.Find(&found, byWallet(f.Wallet)); err != nil {
		return nil, err
	}
	list := make([]store.TxRecord, 0, len(found))
	for _, tx := range found {
		if f.Match(tx) {
			list = append(list, tx)
		}
	}
	store.SortTxs(list)
	return list, nil
}

func (s *Store) DeleteTx(_ context.Context, id string) error {
	if err := s.db.Delete(id, store.TxRecord{}); err != nil {
		return mapErr("transaction "+id, err)
	}
	return nil
}

func (s *Store) ListUnspent(ctx context.Context, wallet string) ([]store.Unspent, error) {
	txs, err := s.FindTxs(ctx, store.TxFilter{Wallet: wallet})
	if err != nil {
		return nil, err
	}
	return store.UnspentOf(txs), nil
}

func (s *Store) SaveNetwork(_ context.Context, n *store.NetworkRecord) error {
	return s.db.Upsert(n.Name, n)
}

func (s *Store) GetNetwork(_ context.Context, name string) (*store.NetworkRecord, error) {
	var n store.NetworkRecord
	if err := s.db.Get(name, &n); err != nil {
		return nil, mapErr("network "+name, err)
	}
	return &n, nil
}

func (s *Store) ListNetworks(context.Context) ([]store.NetworkRecord, error) {
	var list []store.NetworkRecord
	if err := s.db.Find(&list, nil); err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *Store) Close() error {
	for _, seq := range []*badger.Sequence{s.keySeq, s.childSeq, s.txSeq} {
		if seq == nil {
			continue
		}
		if err := seq.Release(); err != nil {
			return err
		}
	}
	return s.db.Close()
}

func nextID(seq *badger.Sequence) (uint64, error) {
	id, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return id + 1, nil
}

func byWallet(wallet string) *badgerhold.Query {
	if wallet == "" {
		return nil
	}
	return badgerhold.Where("Wallet").Eq(wallet).Index("Wallet")
}

func mapErr(what string, err error) error {
	switch {
	case errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	case errors.Is(err, badgerhold.ErrKeyExists):
		return fmt.Errorf("%s: %w", what, store.ErrDuplicate)
	}
	return err
}
