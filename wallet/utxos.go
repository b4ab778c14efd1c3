package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/go-bitcoin/chain"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/store"
	"github.com/vulpemventures/go-bitcoin/transaction"
)

// pageSize is the number of items asked to the chain service at once.
const pageSize = 100

// ErrNoUtxos is the cause of selection failures on wallets with no
// spendable output.
var ErrNoUtxos = errors.New("no spendable outputs")

// Utxo is an unspent output of the wallet.
type Utxo struct {
	TxID          string
	OutputN       uint32
	Value         uint64
	Script        []byte
	ScriptType    string
	Address       string
	KeyID         uint64
	Account       uint32
	Confirmations uint32
	BlockHeight   uint32
	Status        transaction.Status
}

// Outpoint returns the txid:index form of the output.
func (u Utxo) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.TxID, u.OutputN)
}

// UtxoFilter selects unspent outputs. Zero values match anything.
type UtxoFilter struct {
	Account          *uint32
	MinConfirmations uint32
	KeyID            uint64
}

// Utxos returns the unspent outputs of the wallet selected by f, in the
// order they were received.
func (w *Wallet) Utxos(ctx context.Context, f UtxoFilter) ([]Utxo, error) {
	unspent, err := w.store.ListUnspent(ctx, w.Name)
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.Utxos", w.Name, err)
	}
	out := make([]Utxo, 0, len(unspent))
	for _, u := range unspent {
		if f.Account != nil && u.Account != *f.Account {
			continue
		}
		if f.KeyID != 0 && u.KeyID != f.KeyID {
			continue
		}
		if u.Confirmations < f.MinConfirmations {
			continue
		}
		out = append(out, Utxo{
			TxID:          u.TxID,
			OutputN:       u.OutputN,
			Value:         u.Value,
			Script:        u.Script,
			ScriptType:    u.ScriptType,
			Address:       u.Address,
			KeyID:         u.KeyID,
			Account:       u.Account,
			Confirmations: u.Confirmations,
			BlockHeight:   u.BlockHeight,
			Status:        transaction.Status(u.Status),
		})
	}
	return out, nil
}

// Balance returns the value of the unspent outputs of account, confirmed
// or not.
func (w *Wallet) Balance(ctx context.Context, account uint32) (uint64, error) {
	utxos, err := w.Utxos(ctx, UtxoFilter{Account: &account})
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total, nil
}

// Transactions returns the wallet transactions selected by f, most
// confirmed first. The Wallet field of f is ignored.
func (w *Wallet) Transactions(ctx context.Context, f store.TxFilter) ([]store.TxRecord, error) {
	f.Wallet = w.Name
	txs, err := w.store.FindTxs(ctx, f)
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.Transactions", w.Name, err)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if a.Confirmations != b.Confirmations {
			return a.Confirmations > b.Confirmations
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.TxID < b.TxID
	})
	return txs, nil
}

// UtxosUpdate asks the chain service for the unspent outputs of every
// address of account and records the transactions creating them. Outputs
// of confirmed transactions the service does not report anymore are
// marked spent. It returns the number of new outputs. Nothing is written
// if the service fails.
func (w *Wallet) UtxosUpdate(ctx context.Context, account uint32) (int, error) {
	const op = "wallet.UtxosUpdate"

	if w.chain == nil {
		return 0, errs.New(errs.ErrConfig, op, ErrNoChainService).WithWallet(w.Name)
	}
	height, err := w.chain.BlockCount(ctx)
	if err != nil {
		return 0, w.serviceError(op, err)
	}
	l, err := w.loadLedger(ctx)
	if err != nil {
		return 0, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	keys, err := w.addressKeys(ctx, &account)
	if err != nil {
		return 0, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}

	added := 0
	for _, k := range keys {
		utxos, err := w.fetchUTXOs(ctx, k.Address)
		if err != nil {
			return 0, w.serviceError(op, err)
		}

		seen := make(map[string]bool, len(utxos))
		for _, u := range utxos {
			seen[u.Outpoint()] = true
			rec, known := l.txs[u.TxID]
			if !known {
				info, err := w.chain.GetTransaction(ctx, u.TxID)
				if err != nil {
					return 0, w.serviceError(op, err)
				}
				if rec, err = l.fromChain(info, height); err != nil {
					return 0, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
				}
				l.add(rec)
				added++
				continue
			}
			if u.Confirmations > 0 && rec.Status != string(transaction.StatusConfirmed) {
				rec.Status = string(transaction.StatusConfirmed)
				rec.BlockHeight = u.BlockHeight
				rec.Confirmations = u.Confirmations
				l.markDirty(rec.TxID)
			}
		}

		for _, rec := range l.txs {
			if rec.Status != string(transaction.StatusConfirmed) {
				continue
			}
			for _, o := range rec.Outputs {
				if o.KeyID == k.ID && !o.Spent && !seen[fmt.Sprintf("%s:%d", rec.TxID, o.OutputN)] {
					l.spend(rec.TxID, o.OutputN)
				}
			}
		}
	}

	if err := l.save(ctx); err != nil {
		return 0, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	w.log.WithFields(log.Fields{"account": account, "new": added}).Debug("utxos updated")
	return added, nil
}

// TransactionsUpdate fetches the transactions of every address of account
// newer than the last one seen, and returns how many were new.
func (w *Wallet) TransactionsUpdate(ctx context.Context, account uint32) (int, error) {
	const op = "wallet.TransactionsUpdate"

	if w.chain == nil {
		return 0, errs.New(errs.ErrConfig, op, ErrNoChainService).WithWallet(w.Name)
	}
	height, err := w.chain.BlockCount(ctx)
	if err != nil {
		return 0, w.serviceError(op, err)
	}
	l, err := w.loadLedger(ctx)
	if err != nil {
		return 0, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	keys, err := w.addressKeys(ctx, &account)
	if err != nil {
		return 0, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}

	added := 0
	for i := range keys {
		k := l.keys[keys[i].ID]
		infos, err := w.fetchTransactions(ctx, k.Address, k.LatestTxID)
		if err != nil {
			return 0, w.serviceError(op, err)
		}
		for j := range infos {
			info := &infos[j]
			if rec, ok := l.txs[info.TxID]; ok {
				l.confirm(rec, info, height)
				continue
			}
			rec, err := l.fromChain(info, height)
			if err != nil {
				return 0, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
			}
			l.add(rec)
			added++
		}
		if len(infos) > 0 {
			k.LatestTxID = infos[len(infos)-1].TxID
			k.Used = true
			l.touch(k)
		}
	}

	if err := l.save(ctx); err != nil {
		return 0, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	w.log.WithFields(log.Fields{"account": account, "new": added}).Debug("transactions updated")
	return added, nil
}

// UpdateConfirmations refreshes the confirmations of confirmed
// transactions from the chain tip and asks the service about unconfirmed
// ones.
func (w *Wallet) UpdateConfirmations(ctx context.Context) error {
	const op = "wallet.UpdateConfirmations"

	if w.chain == nil {
		return errs.New(errs.ErrConfig, op, ErrNoChainService).WithWallet(w.Name)
	}
	height, err := w.chain.BlockCount(ctx)
	if err != nil {
		return w.serviceError(op, err)
	}
	l, err := w.loadLedger(ctx)
	if err != nil {
		return wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}

	for _, rec := range l.txs {
		switch transaction.Status(rec.Status) {
		case transaction.StatusConfirmed:
			if conf := confirmations(height, rec.BlockHeight); conf != rec.Confirmations {
				rec.Confirmations = conf
				l.markDirty(rec.TxID)
			}
		case transaction.StatusUnconfirmed:
			info, err := w.chain.GetTransaction(ctx, rec.TxID)
			if errors.Is(err, chain.ErrNotFound) {
				continue
			}
			if err != nil {
				return w.serviceError(op, err)
			}
			l.confirm(rec, info, height)
		}
	}

	if err := l.save(ctx); err != nil {
		return wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	return nil
}

// SelectInputs picks confirmed outputs of f worth at least amount:
// the smallest single output within [amount, amount+variance], else the
// smallest single output above amount, else the largest outputs until
// amount is covered, at most maxUtxos of them when positive. Outputs below
// the dust amount are never selected.
func (w *Wallet) SelectInputs(
	ctx context.Context, amount, variance uint64, maxUtxos int, f UtxoFilter,
) ([]Utxo, error) {
	const op = "wallet.SelectInputs"

	if f.MinConfirmations == 0 {
		f.MinConfirmations = 1
	}
	all, err := w.Utxos(ctx, f)
	if err != nil {
		return nil, err
	}
	candidates := make([]Utxo, 0, len(all))
	for _, u := range all {
		if u.Value >= w.Network.DustAmount {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, errs.New(errs.ErrInsufficientFunds, op, ErrNoUtxos).WithWallet(w.Name)
	}

	selected, err := selectUtxos(candidates, amount, variance, maxUtxos)
	if err != nil {
		return nil, errs.New(errs.ErrInsufficientFunds, op, err).WithWallet(w.Name)
	}
	return selected, nil
}

func selectUtxos(utxos []Utxo, amount, variance uint64, maxUtxos int) ([]Utxo, error) {
	sorted := append([]Utxo(nil), utxos...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })

	for _, u := range sorted {
		if u.Value >= amount && u.Value <= amount+variance {
			return []Utxo{u}, nil
		}
	}
	for _, u := range sorted {
		if u.Value >= amount {
			return []Utxo{u}, nil
		}
	}
	if maxUtxos == 1 {
		return nil, fmt.Errorf("no single output covers %d", amount)
	}

	var (
		selected []Utxo
		total    uint64
	)
	for i := len(sorted) - 1; i >= 0; i-- {
		if maxUtxos > 0 && len(selected) == maxUtxos {
			break
		}
		selected = append(selected, sorted[i])
		total += sorted[i].Value
		if total >= amount {
			return selected, nil
		}
	}
	return nil, fmt.Errorf("%d available, %d needed", total, amount)
}

func (w *Wallet) fetchUTXOs(ctx context.Context, addr string) ([]chain.UTXO, error) {
	var (
		all   []chain.UTXO
		after string
	)
	for {
		page, err := w.chain.GetUTXOs(ctx, addr, after, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		after = page[len(page)-1].TxID
	}
}

func (w *Wallet) fetchTransactions(ctx context.Context, addr, after string) ([]chain.TxInfo, error) {
	var all []chain.TxInfo
	for {
		page, err := w.chain.GetTransactions(ctx, addr, after, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		after = page[len(page)-1].TxID
	}
}

func (w *Wallet) serviceError(op string, err error) error {
	if errs.KindOf(err) != nil {
		return wrapWallet(errs.ErrServiceUnavailable, op, w.Name, err)
	}
	return errs.New(errs.ErrServiceUnavailable, op, err).WithWallet(w.Name)
}
