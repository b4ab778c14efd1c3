package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/chain"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/store"
	"github.com/vulpemventures/go-bitcoin/transaction"
)

// ledger is the in memory view of the wallet transactions used to apply a
// batch of changes: outputs are linked to the inputs spending them and key
// balances are recomputed before the batch is written back.
type ledger struct {
	w       *Wallet
	txs     map[string]*store.TxRecord
	keys    map[uint64]*store.KeyRecord
	byAddr  map[string]*store.KeyRecord
	dirty   []string
	isDirty map[string]bool
	removed []string
	touched map[uint64]bool
}

func (w *Wallet) loadLedger(ctx context.Context) (*ledger, error) {
	txs, err := w.store.FindTxs(ctx, store.TxFilter{Wallet: w.Name})
	if err != nil {
		return nil, err
	}
	recs, err := w.addressKeys(ctx, nil)
	if err != nil {
		return nil, err
	}

	l := &ledger{
		w:       w,
		txs:     make(map[string]*store.TxRecord, len(txs)),
		keys:    make(map[uint64]*store.KeyRecord, len(recs)),
		byAddr:  make(map[string]*store.KeyRecord, len(recs)),
		isDirty: make(map[string]bool),
		touched: make(map[uint64]bool),
	}
	for i := range txs {
		l.txs[txs[i].TxID] = &txs[i]
	}
	for i := range recs {
		k := &recs[i]
		l.keys[k.ID] = k
		l.byAddr[k.Address] = k
	}
	return l, nil
}

func (l *ledger) markDirty(txid string) {
	if !l.isDirty[txid] {
		l.isDirty[txid] = true
		l.dirty = append(l.dirty, txid)
	}
}

func (l *ledger) output(txid string, n uint32) *store.TxOutputRecord {
	rec, ok := l.txs[txid]
	if !ok || int(n) >= len(rec.Outputs) {
		return nil
	}
	return &rec.Outputs[n]
}

// add inserts or refreshes rec, linking its inputs to the wallet outputs
// they spend and its outputs to known spenders.
func (l *ledger) add(rec *store.TxRecord) {
	if old, ok := l.txs[rec.TxID]; ok {
		rec.ID = old.ID
		rec.Seq = old.Seq
		for i, o := range old.Outputs {
			if i < len(rec.Outputs) && o.Spent {
				rec.Outputs[i].Spent = true
				rec.Outputs[i].SpendingTxID = o.SpendingTxID
			}
		}
	}

	for i := range rec.Inputs {
		in := &rec.Inputs[i]
		prev := l.output(in.PrevTxID, in.OutputN)
		if prev == nil {
			continue
		}
		if prev.KeyID != 0 {
			in.KeyID = prev.KeyID
			in.Value = prev.Value
			in.Address = prev.Address
		}
		if !prev.Spent || prev.SpendingTxID != rec.TxID {
			prev.Spent = true
			prev.SpendingTxID = rec.TxID
			l.markDirty(in.PrevTxID)
		}
	}

	for _, other := range l.txs {
		for i := range other.Inputs {
			in := &other.Inputs[i]
			if in.PrevTxID != rec.TxID || int(in.OutputN) >= len(rec.Outputs) {
				continue
			}
			o := &rec.Outputs[in.OutputN]
			o.Spent = true
			o.SpendingTxID = other.TxID
			if o.KeyID != 0 && in.KeyID == 0 {
				in.KeyID = o.KeyID
				in.Value = o.Value
				in.Address = o.Address
				l.markDirty(other.TxID)
			}
		}
	}

	l.setAccount(rec)
	l.txs[rec.TxID] = rec
	l.markDirty(rec.TxID)
}

// remove drops the transaction, frees the outputs it spends and removes
// unconfirmed transactions spending its outputs.
func (l *ledger) remove(txid string) {
	rec, ok := l.txs[txid]
	if !ok {
		return
	}
	delete(l.txs, txid)
	if l.isDirty[txid] {
		delete(l.isDirty, txid)
		for i, id := range l.dirty {
			if id == txid {
				l.dirty = append(l.dirty[:i], l.dirty[i+1:]...)
				break
			}
		}
	}
	if rec.ID != "" {
		l.removed = append(l.removed, rec.ID)
	}

	for _, in := range rec.Inputs {
		prev := l.output(in.PrevTxID, in.OutputN)
		if prev != nil && prev.SpendingTxID == txid {
			prev.Spent = false
			prev.SpendingTxID = ""
			l.markDirty(in.PrevTxID)
		}
	}
	for _, o := range rec.Outputs {
		if o.SpendingTxID == "" {
			continue
		}
		if child, ok := l.txs[o.SpendingTxID]; ok && child.Status != string(transaction.StatusConfirmed) {
			l.remove(child.TxID)
		}
	}
}

// spend marks the wallet output txid:n as spent by an unknown transaction.
func (l *ledger) spend(txid string, n uint32) {
	if o := l.output(txid, n); o != nil && !o.Spent {
		o.Spent = true
		l.markDirty(txid)
	}
}

func (l *ledger) touch(k *store.KeyRecord) {
	l.touched[k.ID] = true
}

// save writes the batch and refreshes the balance and the used flag of
// every address key.
func (l *ledger) save(ctx context.Context) error {
	for _, id := range l.removed {
		if err := l.w.store.DeleteTx(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	for _, txid := range l.dirty {
		if err := l.w.store.SaveTx(ctx, l.txs[txid]); err != nil {
			return err
		}
	}

	balances := make(map[uint64]uint64)
	used := make(map[uint64]bool)
	for _, rec := range l.txs {
		for _, o := range rec.Outputs {
			if o.KeyID == 0 {
				continue
			}
			used[o.KeyID] = true
			if !o.Spent {
				balances[o.KeyID] += o.Value
			}
		}
	}
	for id, k := range l.keys {
		changed := l.touched[id] || k.Balance != balances[id] || (used[id] && !k.Used)
		if !changed {
			continue
		}
		k.Balance = balances[id]
		k.Used = k.Used || used[id]
		if err := l.w.store.UpdateKey(ctx, k); err != nil {
			return err
		}
	}

	l.dirty, l.removed = nil, nil
	l.isDirty = make(map[string]bool)
	l.touched = make(map[uint64]bool)
	return nil
}

// record converts tx to its stored form, binding outputs to wallet keys.
func (l *ledger) record(tx *transaction.Transaction, raw []byte) *store.TxRecord {
	w := l.w
	rec := &store.TxRecord{
		Wallet:        w.Name,
		TxID:          tx.TxID(),
		Network:       w.Network.Name,
		WitnessType:   string(network.Legacy),
		Version:       tx.Version,
		Locktime:      tx.Locktime,
		Status:        string(tx.Status),
		Confirmations: tx.Confirmations,
		BlockHeight:   tx.BlockHeight,
		Date:          tx.Date,
		Fee:           tx.Fee,
		FeePerKB:      tx.FeePerKB,
		Size:          tx.VirtualSize(),
		Verified:      tx.Verified,
		Raw:           raw,
	}
	if rec.Date.IsZero() {
		rec.Date = w.now().UTC()
	}

	for i, in := range tx.Inputs {
		if in.HasWitness() || in.Type.IsSegwit() {
			rec.WitnessType = string(network.Segwit)
		}
		r := store.TxInputRecord{
			Index:      i,
			PrevTxID:   in.TxID(),
			OutputN:    in.Index,
			Sequence:   in.Sequence,
			Value:      in.Value,
			Address:    in.Address,
			ScriptType: string(in.Type),
		}
		if k, ok := l.byAddr[in.Address]; ok && in.Address != "" {
			r.KeyID = k.ID
		}
		rec.Inputs = append(rec.Inputs, r)
	}

	for n, out := range tx.Outputs {
		o := store.TxOutputRecord{
			OutputN:    uint32(n),
			Value:      out.Value,
			Script:     out.Script,
			Address:    out.Address,
			ScriptType: out.Type,
			Change:     out.Change,
		}
		if a, err := address.FromScript(out.Script, w.Network); err == nil {
			o.Address = a.String()
			o.ScriptType = a.ScriptType
		}
		if k, ok := l.byAddr[o.Address]; ok && o.Address != "" {
			o.KeyID = k.ID
			o.Change = o.Change || k.Change == 1
		}
		rec.Outputs = append(rec.Outputs, o)
	}
	return rec
}

// fromChain converts a provider transaction seen at the given tip height.
func (l *ledger) fromChain(info *chain.TxInfo, height uint32) (*store.TxRecord, error) {
	tx, err := transaction.NewTxFromBytes(info.Raw)
	if err != nil {
		return nil, err
	}
	tx.Network = l.w.Network
	tx.Fee = info.Fee
	if vsize := tx.VirtualSize(); vsize > 0 {
		tx.FeePerKB = info.Fee * 1000 / uint64(vsize)
	}
	tx.Date = info.Date
	tx.Status = transaction.StatusUnconfirmed
	if info.Confirmed {
		tx.Status = transaction.StatusConfirmed
		tx.BlockHeight = info.BlockHeight
		tx.Confirmations = confirmations(height, info.BlockHeight)
	}
	rec := l.record(tx, info.Raw)
	rec.Verified = true
	return rec, nil
}

// confirm refreshes the chain status of rec from info.
func (l *ledger) confirm(rec *store.TxRecord, info *chain.TxInfo, height uint32) {
	status, conf, bh := string(transaction.StatusUnconfirmed), uint32(0), uint32(0)
	if info.Confirmed {
		status = string(transaction.StatusConfirmed)
		bh = info.BlockHeight
		conf = confirmations(height, bh)
	}
	if rec.Status == status && rec.Confirmations == conf && rec.BlockHeight == bh {
		return
	}
	rec.Status, rec.Confirmations, rec.BlockHeight = status, conf, bh
	if rec.Date.IsZero() && !info.Date.IsZero() {
		rec.Date = info.Date
	}
	l.markDirty(rec.TxID)
}

func (l *ledger) setAccount(rec *store.TxRecord) {
	for _, o := range rec.Outputs {
		if k, ok := l.keys[o.KeyID]; ok {
			rec.Account = k.Account
			return
		}
	}
	for _, in := range rec.Inputs {
		if k, ok := l.keys[in.KeyID]; ok {
			rec.Account = k.Account
			return
		}
	}
}

// stale returns the unconfirmed transactions older than maxAge.
func (l *ledger) stale(now time.Time, maxAge time.Duration) []*store.TxRecord {
	out := make([]*store.TxRecord, 0)
	for _, rec := range l.txs {
		if rec.Status == string(transaction.StatusConfirmed) {
			continue
		}
		if now.Sub(rec.Date) > maxAge {
			out = append(out, rec)
		}
	}
	return out
}

func confirmations(height, blockHeight uint32) uint32 {
	if blockHeight == 0 || blockHeight > height {
		return 0
	}
	return height - blockHeight + 1
}
