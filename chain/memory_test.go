package chain_test

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/go-bitcoin/chain"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/transaction"
)

func newFundedKey(t *testing.T, svc *chain.MemoryService, value uint64) (*keys.Key, string, chain.UTXO) {
	key, err := keys.GenerateKey(network.Regtest, rand.Reader)
	require.NoError(t, err)
	addr, err := key.Address(network.Segwit)
	require.NoError(t, err)

	utxo, err := svc.Fund(addr.String(), value)
	require.NoError(t, err)
	return key, addr.String(), utxo
}

func spend(
	t *testing.T, utxo chain.UTXO, key *keys.Key, to string, value uint64,
) *transaction.Transaction {
	tx := transaction.NewTx(2)
	tx.Network = network.Regtest
	in, err := transaction.NewTxInputFromTxID(utxo.TxID, utxo.OutputN)
	require.NoError(t, err)
	in.Value = utxo.Value
	in.LockingScript = utxo.Script
	tx.AddInput(in)
	_, err = tx.AddOutputToAddress(to, value)
	require.NoError(t, err)
	require.NoError(t, tx.Sign([]*keys.Key{key}, txscript.SigHashAll))
	return tx
}

func TestMemoryServiceFundAndMine(t *testing.T) {
	ctx := context.Background()
	svc := chain.NewMemoryService(network.Regtest)

	_, addr, utxo := newFundedKey(t, svc, 50000)
	require.Equal(t, addr, utxo.Address)
	require.Equal(t, "p2wpkh", utxo.ScriptType)
	require.Len(t, svc.Mempool(), 1)

	utxos, err := svc.GetUTXOs(ctx, addr, "", 0)
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	require.Zero(t, utxos[0].Confirmations)

	require.Equal(t, uint32(3), svc.Mine(3))
	require.Empty(t, svc.Mempool())

	utxos, err = svc.GetUTXOs(ctx, addr, "", 0)
	require.NoError(t, err)
	require.Equal(t, uint32(3), utxos[0].Confirmations)
	require.Equal(t, uint32(1), utxos[0].BlockHeight)

	info, err := svc.GetTransaction(ctx, utxo.TxID)
	require.NoError(t, err)
	require.True(t, info.Confirmed)
	tx, err := transaction.NewTxFromBytes(info.Raw)
	require.NoError(t, err)
	require.Equal(t, utxo.TxID, tx.TxID())

	count, err := svc.BlockCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(3), count)
}

func TestMemoryServiceSend(t *testing.T) {
	ctx := context.Background()
	svc := chain.NewMemoryService(network.Regtest)

	key, from, utxo := newFundedKey(t, svc, 100000)
	_, to, _ := newFundedKey(t, svc, 20000)
	svc.Mine(1)

	tx := spend(t, utxo, key, to, 90000)
	raw, err := tx.Serialize()
	require.NoError(t, err)

	txid, err := svc.SendRawTransaction(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, tx.TxID(), txid)

	// sending again is a no-op
	again, err := svc.SendRawTransaction(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, txid, again)

	utxos, err := svc.GetUTXOs(ctx, from, "", 0)
	require.NoError(t, err)
	require.Empty(t, utxos)

	utxos, err = svc.GetUTXOs(ctx, to, "", 0)
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	require.Equal(t, txid, utxos[1].TxID)

	after, err := svc.GetUTXOs(ctx, to, utxos[0].TxID, 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, txid, after[0].TxID)

	txs, err := svc.GetTransactions(ctx, from, "", 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, txid, txs[1].TxID)
	require.Equal(t, uint64(10000), txs[1].Fee)

	txs, err = svc.GetTransactions(ctx, from, txs[0].TxID, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestMemoryServiceReject(t *testing.T) {
	ctx := context.Background()
	svc := chain.NewMemoryService(network.Regtest)

	key, _, utxo := newFundedKey(t, svc, 100000)
	other, to, _ := newFundedKey(t, svc, 20000)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.SendRawTransaction(ctx, []byte{0x01, 0x02})
		require.True(t, errors.Is(err, chain.ErrRejected))
	})

	t.Run("wrong key", func(t *testing.T) {
		bad := spend(t, utxo, other, to, 90000)
		raw, err := bad.Serialize()
		require.NoError(t, err)
		_, err = svc.SendRawTransaction(ctx, raw)
		require.True(t, errors.Is(err, chain.ErrRejected))
	})

	t.Run("overspend", func(t *testing.T) {
		tx := spend(t, utxo, key, to, 100001)
		raw, err := tx.Serialize()
		require.NoError(t, err)
		_, err = svc.SendRawTransaction(ctx, raw)
		require.True(t, errors.Is(err, chain.ErrRejected))
	})

	t.Run("double spend", func(t *testing.T) {
		first := spend(t, utxo, key, to, 90000)
		raw, err := first.Serialize()
		require.NoError(t, err)
		_, err = svc.SendRawTransaction(ctx, raw)
		require.NoError(t, err)

		second := spend(t, utxo, key, to, 80000)
		raw, err = second.Serialize()
		require.NoError(t, err)
		_, err = svc.SendRawTransaction(ctx, raw)
		require.True(t, errors.Is(err, chain.ErrRejected))
	})
}

func TestMemoryServiceNotFound(t *testing.T) {
	svc := chain.NewMemoryService(nil)
	_, err := svc.GetTransaction(context.Background(), "00")
	require.True(t, errors.Is(err, chain.ErrNotFound))
	require.True(t, chain.IsFinal(err))
}

func TestMemoryServiceEstimateFee(t *testing.T) {
	ctx := context.Background()
	svc := chain.NewMemoryService(network.Bitcoin)

	fee, err := svc.EstimateFee(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, network.Bitcoin.FeeDefault, fee)

	svc.SetFeeEstimate(1, 20000)
	svc.SetFeeEstimate(3, 10000)
	for blocks, want := range map[int]uint64{1: 20000, 2: 20000, 3: 10000, 10: 10000} {
		fee, err := svc.EstimateFee(ctx, blocks)
		require.NoError(t, err)
		require.Equal(t, want, fee, "blocks %d", blocks)
	}
}

func TestMemoryServiceBehindMultiplexer(t *testing.T) {
	svc := chain.NewMemoryService(network.Regtest)
	m, err := chain.NewMultiplexer(nil, chain.Provider{Name: "memory", Service: svc})
	require.NoError(t, err)

	svc.Mine(5)
	count, err := m.BlockCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(5), count)

	_, err = m.GetTransaction(context.Background(), "00")
	require.True(t, errors.Is(err, chain.ErrNotFound))
}

func TestMemoryServiceReplaceByFee(t *testing.T) {
	ctx := context.Background()
	svc := chain.NewMemoryService(network.Regtest)

	key, _, utxo := newFundedKey(t, svc, 100000)
	_, to, _ := newFundedKey(t, svc, 20000)
	svc.Mine(1)

	signal := func(value uint64) []byte {
		tx := spend(t, utxo, key, to, value)
		tx.ClearSignatures()
		tx.Inputs[0].Sequence = transaction.SequenceReplaceByFee
		require.NoError(t, tx.Sign([]*keys.Key{key}, txscript.SigHashAll))
		raw, err := tx.Serialize()
		require.NoError(t, err)
		return raw
	}

	first, err := svc.SendRawTransaction(ctx, signal(90000))
	require.NoError(t, err)

	_, err = svc.SendRawTransaction(ctx, signal(95000))
	require.True(t, errors.Is(err, chain.ErrRejected))

	second, err := svc.SendRawTransaction(ctx, signal(80000))
	require.NoError(t, err)
	require.Equal(t, []string{second}, svc.Mempool())

	_, err = svc.GetTransaction(ctx, first)
	require.True(t, errors.Is(err, chain.ErrNotFound))

	utxos, err := svc.GetUTXOs(ctx, to, "", 0)
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	require.Equal(t, uint64(80000), utxos[1].Value)
}
