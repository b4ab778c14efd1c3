// Package storetest runs the behavior every store.WalletStore must have.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/store"
)

// Run exercises the store returned by newStore. Each subtest gets a fresh
// store.
func Run(t *testing.T, newStore func(t *testing.T) store.WalletStore) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.WalletStore)
	}{
		{"wallets", testWallets},
		{"keys", testKeys},
		{"multisig children", testMultisigChildren},
		{"transactions", testTransactions},
		{"unspent", testUnspent},
		{"networks", testNetworks},
		{"delete wallet", testDeleteWallet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

var created = time.Unix(1600000000, 0).UTC()

func wallet(name string) *store.WalletRecord {
	return &store.WalletRecord{
		Name:         name,
		Scheme:       "multisig",
		WitnessType:  "segwit",
		Encoding:     "bech32",
		Network:      "bitcoin",
		Networks:     []string{"bitcoin"},
		Purpose:      48,
		KeyPath:      []string{"m", "purpose'", "coin_type'", "account'", "script_type'", "change", "address_index"},
		SigsRequired: 2,
		SortKeys:     true,
		Cosigners: []store.CosignerRecord{
			{Index: 0, Key: "xprv-0", Private: true},
			{Index: 1, Key: "xpub-1"},
		},
		CreatedAt: created,
	}
}

func testWallets(t *testing.T, s store.WalletStore) {
	ctx := context.Background()

	w := wallet("alice")
	require.NoError(t, s.AddWallet(ctx, w))
	err := s.AddWallet(ctx, wallet("alice"))
	require.True(t, errors.Is(err, store.ErrDuplicate))

	got, err := s.GetWallet(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, w.Cosigners, got.Cosigners)
	require.Equal(t, w.KeyPath, got.KeyPath)
	require.Equal(t, 2, got.SigsRequired)
	require.True(t, got.CreatedAt.Equal(created))

	got.MainKeyID = 7
	require.NoError(t, s.UpdateWallet(ctx, got))
	got, err = s.GetWallet(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(7), got.MainKeyID)

	require.True(t, errors.Is(s.UpdateWallet(ctx, wallet("bob")), store.ErrNotFound))
	_, err = s.GetWallet(ctx, "bob")
	require.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.AddWallet(ctx, wallet("bob")))
	list, err := s.ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "alice", list[0].Name)
	require.Equal(t, "bob", list[1].Name)
}

func testKeys(t *testing.T, s store.WalletStore) {
	ctx := context.Background()
	require.NoError(t, s.AddWallet(ctx, wallet("alice")))

	master := &store.KeyRecord{Wallet: "alice", Name: "master", IsMaster: true, Key: "xprv", IsPrivate: true}
	require.NoError(t, s.AddKey(ctx, master))
	require.NotZero(t, master.ID)

	var ids []uint64
	for change := uint32(0); change < 2; change++ {
		for i := uint32(0); i < 3; i++ {
			k := &store.KeyRecord{
				Wallet:       "alice",
				Account:      0,
				Change:       change,
				AddressIndex: i,
				Depth:        5,
				ParentID:     master.ID,
				Address:      "addr",
				RedeemScript: []byte{0x52},
				CreatedAt:    created,
			}
			require.NoError(t, s.AddKey(ctx, k))
			ids = append(ids, k.ID)
		}
	}
	other := &store.KeyRecord{Wallet: "bob", Account: 0}
	require.NoError(t, s.AddKey(ctx, other))

	got, err := s.GetKey(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, master.ID, got.ParentID)
	require.Equal(t, []byte{0x52}, got.RedeemScript)

	change := store.Uint32(1)
	keys, err := s.FindKeys(ctx, store.KeyFilter{Wallet: "alice", Change: change})
	require.NoError(t, err)
	require.Len(t, keys, 3)
	for i, k := range keys {
		require.Equal(t, ids[3+i], k.ID)
		require.Equal(t, uint32(i), k.AddressIndex)
	}

	keys, err = s.FindKeys(ctx, store.KeyFilter{Wallet: "alice", IsMaster: store.Bool(true)})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "xprv", keys[0].Key)

	got.Used = true
	got.Balance = 1000
	require.NoError(t, s.UpdateKey(ctx, got))
	keys, err = s.FindKeys(ctx, store.KeyFilter{Wallet: "alice", Used: store.Bool(true)})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, uint64(1000), keys[0].Balance)

	_, err = s.GetKey(ctx, 9999)
	require.True(t, errors.Is(err, store.ErrNotFound))
	require.True(t, errors.Is(s.UpdateKey(ctx, &store.KeyRecord{ID: 9999}), store.ErrNotFound))
}

func testMultisigChildren(t *testing.T, s store.WalletStore) {
	ctx := context.Background()

	for _, idx := range []int{2, 0, 1} {
		c := &store.MultisigChildRecord{Wallet: "alice", ParentID: 10, ChildID: uint64(20 + idx), CosignerIndex: idx}
		require.NoError(t, s.AddMultisigChild(ctx, c))
		require.NotZero(t, c.ID)
	}
	require.NoError(t, s.AddMultisigChild(ctx, &store.MultisigChildRecord{Wallet: "alice", ParentID: 11, ChildID: 30}))

	children, err := s.MultisigChildren(ctx, 10)
	require.NoError(t, err)
	require.Len(t, children, 3)
	for i, c := range children {
		require.Equal(t, i, c.CosignerIndex)
		require.Equal(t, uint64(20+i), c.ChildID)
	}
}

func txRecord(wallet, txid, status string) *store.TxRecord {
	return &store.TxRecord{
		Wallet:  wallet,
		TxID:    txid,
		Network: "bitcoin",
		Status:  status,
		Date:    created,
		Raw:     []byte{0x01, 0x00},
		Inputs: []store.TxInputRecord{
			{Index: 0, PrevTxID: "prev", OutputN: 1, Value: 5000, KeyID: 3},
		},
		Outputs: []store.TxOutputRecord{
			{OutputN: 0, Value: 3000, Script: []byte{0x00, 0x14}, KeyID: 4},
			{OutputN: 1, Value: 1500, Script: []byte{0x76}},
		},
	}
}

func testTransactions(t *testing.T, s store.WalletStore) {
	ctx := context.Background()

	first := txRecord("alice", "aa", "confirmed")
	require.NoError(t, s.SaveTx(ctx, first))
	require.NotEmpty(t, first.ID)
	second := txRecord("alice", "bb", "unconfirmed")
	require.NoError(t, s.SaveTx(ctx, second))
	third := txRecord("bob", "cc", "new")
	require.NoError(t, s.SaveTx(ctx, third))
	require.Less(t, first.Seq, second.Seq)

	got, err := s.GetTx(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "aa", got.TxID)
	require.Equal(t, first.Outputs, got.Outputs)
	require.Equal(t, first.Inputs, got.Inputs)
	require.True(t, got.Date.Equal(created))

	txs, err := s.FindTxs(ctx, store.TxFilter{Wallet: "alice"})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, "aa", txs[0].TxID)
	require.Equal(t, "bb", txs[1].TxID)

	txs, err = s.FindTxs(ctx, store.TxFilter{Wallet: "alice", Status: []string{"new", "unconfirmed"}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "bb", txs[0].TxID)

	txs, err = s.FindTxs(ctx, store.TxFilter{TxID: "cc"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "bob", txs[0].Wallet)

	// saving again updates in place and keeps the insertion order
	seq := first.Seq
	first.Status = "confirmed"
	first.Confirmations = 6
	require.NoError(t, s.SaveTx(ctx, first))
	require.Equal(t, seq, first.Seq)
	got, err = s.GetTx(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, uint32(6), got.Confirmations)

	require.NoError(t, s.DeleteTx(ctx, second.ID))
	_, err = s.GetTx(ctx, second.ID)
	require.True(t, errors.Is(err, store.ErrNotFound))
	require.True(t, errors.Is(s.DeleteTx(ctx, second.ID), store.ErrNotFound))
}

func testUnspent(t *testing.T, s store.WalletStore) {
	ctx := context.Background()

	tx := txRecord("alice", "aa", "confirmed")
	tx.Confirmations = 3
	require.NoError(t, s.SaveTx(ctx, tx))

	unspent, err := s.ListUnspent(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	require.Equal(t, "aa", unspent[0].TxID)
	require.Equal(t, uint64(3000), unspent[0].Value)
	require.Equal(t, uint32(3), unspent[0].Confirmations)
	require.Equal(t, tx.ID, unspent[0].TxRecordID)

	tx.Outputs[0].Spent = true
	tx.Outputs[0].SpendingTxID = "bb"
	require.NoError(t, s.SaveTx(ctx, tx))
	unspent, err = s.ListUnspent(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, unspent)
}

func testNetworks(t *testing.T, s store.WalletStore) {
	ctx := context.Background()

	require.NoError(t, s.SaveNetwork(ctx, &store.NetworkRecord{Name: "testnet", Label: "Bitcoin Testnet", CurrencyCode: "tBTC"}))
	require.NoError(t, s.SaveNetwork(ctx, &store.NetworkRecord{Name: "bitcoin", Label: "Bitcoin", CurrencyCode: "BTC"}))
	require.NoError(t, s.SaveNetwork(ctx, &store.NetworkRecord{Name: "bitcoin", Label: "Bitcoin", CurrencyCode: "BTC"}))

	n, err := s.GetNetwork(ctx, "testnet")
	require.NoError(t, err)
	require.Equal(t, "tBTC", n.CurrencyCode)

	list, err := s.ListNetworks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "bitcoin", list[0].Name)

	_, err = s.GetNetwork(ctx, "dogecoin")
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func testDeleteWallet(t *testing.T, s store.WalletStore) {
	ctx := context.Background()

	require.NoError(t, s.AddWallet(ctx, wallet("alice")))
	require.NoError(t, s.AddWallet(ctx, wallet("bob")))
	require.NoError(t, s.AddKey(ctx, &store.KeyRecord{Wallet: "alice"}))
	require.NoError(t, s.AddKey(ctx, &store.KeyRecord{Wallet: "bob"}))
	require.NoError(t, s.AddMultisigChild(ctx, &store.MultisigChildRecord{Wallet: "alice", ParentID: 1}))
	require.NoError(t, s.SaveTx(ctx, txRecord("alice", "aa", "new")))
	require.NoError(t, s.SaveTx(ctx, txRecord("bob", "bb", "new")))

	require.NoError(t, s.DeleteWallet(ctx, "alice"))
	_, err := s.GetWallet(ctx, "alice")
	require.True(t, errors.Is(err, store.ErrNotFound))
	require.True(t, errors.Is(s.DeleteWallet(ctx, "alice"), store.ErrNotFound))

	keys, err := s.FindKeys(ctx, store.KeyFilter{})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "bob", keys[0].Wallet)

	children, err := s.MultisigChildren(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, children)

	txs, err := s.FindTxs(ctx, store.TxFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "bb", txs[0].TxID)
}
