package wallet

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/txscript"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/go-bitcoin/chain"
	"github.com/vulpemventures/go-bitcoin/coinutil"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/store"
	"github.com/vulpemventures/go-bitcoin/transaction"
)

// RandomChange asks CreateTransaction to split the change in a random
// number of outputs.
const RandomChange = -1

// selection rounds before giving up on a stable fee estimate
const maxSelectRounds = 10

var (
	// ErrNoOutputs is returned when creating a transaction without outputs.
	ErrNoOutputs = errors.New("transaction has no outputs")
	// ErrNotVerified is returned when sending a transaction whose
	// signatures are missing or invalid.
	ErrNotVerified = errors.New("transaction is not fully signed")
	// ErrUnknownInput is returned for inputs not spending a wallet output.
	ErrUnknownInput = errors.New("input does not spend a wallet output")
	// ErrInvalidPriority is returned for unknown fee priorities.
	ErrInvalidPriority = errors.New("unknown fee priority")
)

// FeePriority tells how fast a transaction should confirm.
type FeePriority string

const (
	FeeLow    FeePriority = "low"
	FeeNormal FeePriority = "normal"
	FeeHigh   FeePriority = "high"
)

var feeBlocks = map[FeePriority]int{
	FeeLow:    10,
	FeeNormal: 3,
	FeeHigh:   1,
}

// Output is a payment to an address.
type Output struct {
	Address string
	Value   uint64
}

// TxOpts are the options of CreateTransaction.
type TxOpts struct {
	Account uint32
	// Fee is the absolute fee. When 0 it is estimated from FeePerKB, or
	// from the chain service estimate for Priority.
	Fee      uint64
	FeePerKB uint64
	Priority FeePriority
	// NumChange is the number of change outputs, 1 when 0, picked at
	// random when RandomChange.
	NumChange int
	// MaxUtxos bounds the number of inputs selected, 0 means no bound.
	MaxUtxos int
	// Variance is the extra over the needed amount a single output may
	// carry to be spent alone. It defaults to the dust amount.
	Variance uint64
	Locktime uint32
	// ReplaceByFee signals BIP-125 on every input.
	ReplaceByFee bool
	// NoShuffle keeps the outputs in the order given, change last.
	NoShuffle bool
	// Inputs are spent instead of running the input selection.
	Inputs []Utxo
}

func (o TxOpts) validate() error {
	if o.Priority != "" {
		if _, ok := feeBlocks[o.Priority]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidPriority, o.Priority)
		}
	}
	if o.NumChange < RandomChange {
		return fmt.Errorf("invalid number of change outputs %d", o.NumChange)
	}
	if o.MaxUtxos < 0 {
		return fmt.Errorf("invalid max utxos %d", o.MaxUtxos)
	}
	return nil
}

// EstimateFee returns the fee rate in sat/kB for priority, from the chain
// service when available and the network default otherwise, clamped to
// the network bounds.
func (w *Wallet) EstimateFee(ctx context.Context, priority FeePriority) (uint64, error) {
	if priority == "" {
		priority = FeeNormal
	}
	blocks, ok := feeBlocks[priority]
	if !ok {
		return 0, errs.New(errs.ErrConfig, "wallet.EstimateFee", ErrInvalidPriority).WithWallet(w.Name)
	}

	rate := w.Network.FeeDefault
	if w.chain != nil {
		estimate, err := w.chain.EstimateFee(ctx, blocks)
		if err != nil {
			w.log.WithError(err).Warnf("fee estimate failed, using default %d sat/kB", rate)
		} else if estimate > 0 {
			rate = estimate
		}
	}
	return w.clampFee(rate), nil
}

func (w *Wallet) clampFee(rate uint64) uint64 {
	if rate < w.Network.FeeMin {
		return w.Network.FeeMin
	}
	if w.Network.FeeMax > 0 && rate > w.Network.FeeMax {
		return w.Network.FeeMax
	}
	return rate
}

// CreateTransaction builds an unsigned transaction paying outputs from the
// outputs of opts.Account, adding change outputs on new change keys.
func (w *Wallet) CreateTransaction(
	ctx context.Context, outputs []Output, opts TxOpts,
) (*transaction.Transaction, error) {
	const op = "wallet.CreateTransaction"

	if len(outputs) == 0 {
		return nil, errs.New(errs.ErrInvalidTransaction, op, ErrNoOutputs).WithWallet(w.Name)
	}
	if err := opts.validate(); err != nil {
		return nil, errs.New(errs.ErrConfig, op, err).WithWallet(w.Name)
	}

	tx := w.newTx(opts)
	for _, o := range outputs {
		if _, err := tx.AddOutputToAddress(o.Address, o.Value); err != nil {
			return nil, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
		}
	}
	sent := tx.OutputTotal()

	rate := opts.FeePerKB
	if rate == 0 && opts.Fee == 0 {
		estimate, err := w.EstimateFee(ctx, opts.Priority)
		if err != nil {
			return nil, err
		}
		rate = estimate
	}
	variance := opts.Variance
	if variance == 0 {
		variance = w.Network.DustAmount
	}

	if err := w.fund(ctx, tx, sent, rate, variance, opts); err != nil {
		return nil, err
	}
	if err := w.addChange(ctx, tx, sent, rate, opts); err != nil {
		return nil, err
	}

	if !opts.NoShuffle {
		if err := tx.Shuffle(w.rand()); err != nil {
			return nil, errs.New(errs.ErrInternalConsistency, op, err).WithWallet(w.Name)
		}
	}
	if size := tx.EstimateSize(0); size > 0 {
		tx.FeePerKB = tx.Fee * 1000 / uint64(size)
	}
	if err := tx.CheckStandard(); err != nil {
		return nil, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}

	w.log.WithFields(log.Fields{
		"inputs":  len(tx.Inputs),
		"outputs": len(tx.Outputs),
		"fee":     tx.Fee,
	}).Debug("transaction created")
	return tx, nil
}

func (w *Wallet) newTx(opts TxOpts) *transaction.Transaction {
	tx := transaction.NewTx(transaction.DefaultVersion)
	tx.Network = w.Network
	tx.WitnessType = w.WitnessType
	tx.Locktime = opts.Locktime
	tx.Date = w.now().UTC()
	return tx
}

// fund sets the inputs of tx, selecting again while the estimated fee
// grows with the inputs.
func (w *Wallet) fund(
	ctx context.Context, tx *transaction.Transaction,
	sent, rate, variance uint64, opts TxOpts,
) error {
	const op = "wallet.CreateTransaction"

	sequence := uint32(transaction.DefaultSequence)
	switch {
	case opts.ReplaceByFee:
		sequence = transaction.SequenceReplaceByFee
	case opts.Locktime != 0:
		sequence = transaction.SequenceEnableLockTime
	}

	if len(opts.Inputs) > 0 {
		if err := w.setInputs(ctx, tx, opts.Inputs, sequence); err != nil {
			return err
		}
		if tx.InputTotal() < sent+w.feeFor(tx, rate, opts, 0) {
			return errs.New(errs.ErrInsufficientFunds, op, fmt.Errorf(
				"inputs worth %d can't pay %d plus fee", tx.InputTotal(), sent,
			)).WithWallet(w.Name)
		}
		return nil
	}

	fee := w.feeFor(tx, rate, opts, 1)
	filter := UtxoFilter{Account: &opts.Account}
	for round := 0; round < maxSelectRounds; round++ {
		selected, err := w.SelectInputs(ctx, sent+fee, variance, opts.MaxUtxos, filter)
		if err != nil {
			return err
		}
		if err := w.setInputs(ctx, tx, selected, sequence); err != nil {
			return err
		}
		if tx.InputTotal() >= sent+w.feeFor(tx, rate, opts, 0) {
			return nil
		}
		fee = w.feeFor(tx, rate, opts, 1)
	}
	return errs.New(errs.ErrInsufficientFunds, op, fmt.Errorf(
		"no selection pays %d plus fee", sent,
	)).WithWallet(w.Name)
}

func (w *Wallet) feeFor(tx *transaction.Transaction, rate uint64, opts TxOpts, nChange int) uint64 {
	if opts.Fee > 0 {
		return opts.Fee
	}
	return tx.EstimateFee(rate, nChange)
}

// addChange pays back what the inputs carry above outputs and fee. Change
// worth less than dust, or than the cost of its own output, goes to the
// fee.
func (w *Wallet) addChange(
	ctx context.Context, tx *transaction.Transaction, sent, rate uint64, opts TxOpts,
) error {
	const op = "wallet.CreateTransaction"

	dust := w.Network.DustAmount
	total := tx.InputTotal()
	noChangeFee := w.feeFor(tx, rate, opts, 0)
	changeFee := w.feeFor(tx, rate, opts, 1)

	tx.Fee = total - sent
	if total < sent+changeFee {
		return nil
	}
	change := total - sent - changeFee
	if change <= dust || (opts.Fee == 0 && change <= changeFee-noChangeFee) {
		return nil
	}

	n := opts.NumChange
	switch {
	case n == RandomChange:
		picked, err := randomChangeCount(change, sent, dust, w.rand())
		if err != nil {
			return errs.New(errs.ErrInternalConsistency, op, err).WithWallet(w.Name)
		}
		n = picked
	case n == 0:
		n = 1
	}
	for ; n > 1; n-- {
		c := total - sent
		fee := w.feeFor(tx, rate, opts, n)
		if c > fee && c-fee >= uint64(n)*dust {
			change = c - fee
			break
		}
	}
	if n == 1 {
		change = total - sent - changeFee
	}

	amounts, err := splitChange(change, n, dust, w.rand())
	if err != nil {
		return errs.New(errs.ErrInternalConsistency, op, err).WithWallet(w.Name)
	}
	for _, amount := range amounts {
		key, err := w.changeKey(ctx, opts.Account)
		if err != nil {
			return err
		}
		out, err := tx.AddOutputToAddress(key.Address, amount)
		if err != nil {
			return wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
		}
		out.Change = true
	}
	tx.Fee = total - tx.OutputTotal()
	return nil
}

func (w *Wallet) changeKey(ctx context.Context, account uint32) (*WalletKey, error) {
	if w.leafDepth() == 0 {
		return w.soleKey(ctx)
	}
	return w.NewKeyChange(ctx, account)
}

// setInputs replaces the inputs of tx with the given outputs.
func (w *Wallet) setInputs(
	ctx context.Context, tx *transaction.Transaction, utxos []Utxo, sequence uint32,
) error {
	tx.Inputs = tx.Inputs[:0]
	for _, u := range utxos {
		in, err := transaction.NewTxInputFromTxID(u.TxID, u.OutputN)
		if err != nil {
			return wrapWallet(errs.ErrInvalidTransaction, "wallet.setInputs", w.Name, err)
		}
		in.Sequence = sequence
		in.Value = u.Value
		in.LockingScript = u.Script
		in.Address = u.Address
		if err := w.describeInput(ctx, in, u.KeyID); err != nil {
			return err
		}
		tx.AddInput(in)
	}
	return nil
}

// describeInput attaches the keys and scripts needed to sign an input
// spending an output of the wallet key keyID.
func (w *Wallet) describeInput(ctx context.Context, in *transaction.TxInput, keyID uint64) error {
	const op = "wallet.describeInput"

	key, err := w.Key(ctx, keyID)
	if err != nil {
		return err
	}
	in.KeyPath = key.Path
	if in.Address == "" {
		in.Address = key.Address
	}

	if key.KeyType != keyTypeMultisig {
		if key.HD == nil {
			return errs.New(errs.ErrInternalConsistency, op, ErrUnknownInput).WithKey(fmt.Sprint(keyID))
		}
		in.Keys = []*keys.Key{key.HD.Key.Public()}
		in.Type = singleInputType(w.WitnessType)
		return nil
	}

	in.Keys = make([]*keys.Key, 0, len(key.Cosigners))
	for _, c := range key.Cosigners {
		in.Keys = append(in.Keys, c.HD.Key.Public())
	}
	in.SigsRequired = w.SigsRequired
	in.SortKeys = w.SortKeys
	switch w.WitnessType {
	case network.Segwit:
		in.Type = transaction.InputP2WSH
		in.WitnessScript = key.RedeemScript
	case network.P2SHSegwit:
		in.Type = transaction.InputP2SHP2WSH
		in.WitnessScript = key.RedeemScript
	default:
		in.Type = transaction.InputP2SHMultisig
		in.RedeemScript = key.RedeemScript
	}
	return nil
}

func singleInputType(wt network.WitnessType) transaction.InputType {
	switch wt {
	case network.Segwit:
		return transaction.InputP2WPKH
	case network.P2SHSegwit:
		return transaction.InputP2SHP2WPKH
	case network.Taproot:
		return transaction.InputP2TR
	}
	return transaction.InputP2PKH
}

// Sign signs every input spending a wallet output with the private keys
// the wallet holds, plus the ones derived from extra keys. Multisig inputs
// may stay partially signed: Verified tells whether the transaction is
// complete.
func (w *Wallet) Sign(ctx context.Context, tx *transaction.Transaction, extra ...*keys.HDKey) error {
	const op = "wallet.Sign"

	signers := make([]*keys.Key, 0)
	for _, in := range tx.Inputs {
		if in.Address == "" {
			continue
		}
		rec, err := w.keyByAddress(ctx, in.Address)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		key, err := w.walletKey(ctx, *rec)
		if err != nil {
			return err
		}
		signers = append(signers, w.signersFor(key, extra)...)
	}

	signErr := tx.Sign(signers, txscript.SigHashAll)
	verifyErr := tx.Verify()
	if signErr != nil {
		return wrapWallet(errs.ErrInvalidTransaction, op, w.Name, signErr)
	}
	// partial multisig signatures are not an error
	if verifyErr != nil {
		w.log.WithError(verifyErr).WithField("txid", tx.TxID()).Debug("transaction not fully signed")
		return nil
	}
	// the fee rate follows the signed size, not the estimate
	if err := tx.UpdateFee(); err != nil && !errors.Is(err, transaction.ErrMissingInputValue) {
		return wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}
	return nil
}

func (w *Wallet) signersFor(key *WalletKey, extra []*keys.HDKey) []*keys.Key {
	t := target{key.Account, key.Change, key.AddressIndex}
	out := make([]*keys.Key, 0)

	holders := []*WalletKey{key}
	if key.KeyType == keyTypeMultisig {
		holders = key.Cosigners
	}
	for _, h := range holders {
		if h.HD != nil && h.HD.IsPrivate() {
			out = append(out, h.HD.Key)
		}
	}
	for _, c := range w.Cosigners {
		if !c.Key.IsPrivate() {
			continue
		}
		if k, err := w.derive(c.Key, t); err == nil {
			out = append(out, k.Key)
		}
	}
	for _, e := range extra {
		if e == nil || !e.IsPrivate() {
			continue
		}
		out = append(out, e.Key)
		if e.KeyType == keys.BIP32 {
			if k, err := w.derive(e, t); err == nil {
				out = append(out, k.Key)
			}
		}
	}
	return out
}

// Send broadcasts a verified transaction and records it as unconfirmed.
// Offline sends skip the broadcast and the bookkeeping.
func (w *Wallet) Send(ctx context.Context, tx *transaction.Transaction, offline bool) (string, error) {
	return w.broadcast(ctx, tx, offline, "")
}

func (w *Wallet) broadcast(
	ctx context.Context, tx *transaction.Transaction, offline bool, replaces string,
) (string, error) {
	const op = "wallet.Send"

	txid := tx.TxID()
	if !tx.Verified {
		return "", errs.New(errs.ErrInvalidTransaction, op, ErrNotVerified).WithWallet(w.Name).WithTx(txid)
	}
	if offline {
		return txid, nil
	}
	if w.chain == nil {
		return "", errs.New(errs.ErrConfig, op, ErrNoChainService).WithWallet(w.Name)
	}

	raw, err := tx.Serialize()
	if err != nil {
		return "", wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}
	if _, err := w.chain.SendRawTransaction(ctx, raw); err != nil {
		if errors.Is(err, chain.ErrRejected) {
			return "", errs.New(errs.ErrInvalidTransaction, op, err).WithWallet(w.Name).WithTx(txid)
		}
		return "", w.serviceError(op, err)
	}

	tx.Status = transaction.StatusUnconfirmed
	tx.Confirmations = 0
	tx.BlockHeight = 0
	tx.Date = w.now().UTC()

	l, err := w.loadLedger(ctx)
	if err != nil {
		return "", wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	if replaces != "" {
		l.remove(replaces)
	}
	l.add(l.record(tx, raw))
	if err := l.save(ctx); err != nil {
		return "", wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}

	w.log.WithFields(log.Fields{
		"txid": txid,
		"fee":  coinutil.NewValue(tx.Fee, w.Network).String(),
	}).Info("transaction sent")
	return txid, nil
}

// SendTo creates, signs and sends a transaction paying outputs.
func (w *Wallet) SendTo(
	ctx context.Context, outputs []Output, opts TxOpts, offline bool,
) (*transaction.Transaction, error) {
	tx, err := w.CreateTransaction(ctx, outputs, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Sign(ctx, tx); err != nil {
		return nil, err
	}
	if _, err := w.Send(ctx, tx, offline); err != nil {
		return nil, err
	}
	return tx, nil
}

// Sweep sends every confirmed output of opts.Account to addr, minus the
// fee.
func (w *Wallet) Sweep(
	ctx context.Context, addr string, opts TxOpts, offline bool,
) (*transaction.Transaction, error) {
	const op = "wallet.Sweep"

	account := opts.Account
	utxos := opts.Inputs
	if len(utxos) == 0 {
		all, err := w.Utxos(ctx, UtxoFilter{Account: &account, MinConfirmations: 1})
		if err != nil {
			return nil, err
		}
		for _, u := range all {
			if u.Value >= w.Network.DustAmount {
				utxos = append(utxos, u)
			}
		}
	}
	if opts.MaxUtxos > 0 && len(utxos) > opts.MaxUtxos {
		utxos = utxos[:opts.MaxUtxos]
	}
	if len(utxos) == 0 {
		return nil, errs.New(errs.ErrInsufficientFunds, op, ErrNoUtxos).WithWallet(w.Name)
	}

	rate := opts.FeePerKB
	if rate == 0 && opts.Fee == 0 {
		estimate, err := w.EstimateFee(ctx, opts.Priority)
		if err != nil {
			return nil, err
		}
		rate = estimate
	}

	tx := w.newTx(opts)
	sequence := uint32(transaction.DefaultSequence)
	if opts.ReplaceByFee {
		sequence = transaction.SequenceReplaceByFee
	} else if opts.Locktime != 0 {
		sequence = transaction.SequenceEnableLockTime
	}
	if err := w.setInputs(ctx, tx, utxos, sequence); err != nil {
		return nil, err
	}

	// size the fee with a placeholder output of the right script
	placeholder, err := tx.AddOutputToAddress(addr, w.Network.DustAmount)
	if err != nil {
		return nil, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}
	fee := w.feeFor(tx, rate, opts, 0)
	total := tx.InputTotal()
	if total < fee+w.Network.DustAmount {
		return nil, errs.New(errs.ErrInsufficientFunds, op, fmt.Errorf(
			"%d left after a fee of %d is below dust", total-min(total, fee), fee,
		)).WithWallet(w.Name)
	}
	placeholder.Value = total - fee
	tx.Fee = fee
	if size := tx.EstimateSize(0); size > 0 {
		tx.FeePerKB = fee * 1000 / uint64(size)
	}
	if err := tx.CheckStandard(); err != nil {
		return nil, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}

	if err := w.Sign(ctx, tx); err != nil {
		return nil, err
	}
	if _, err := w.Send(ctx, tx, offline); err != nil {
		return nil, err
	}
	return tx, nil
}

// BumpFee replaces tx with a copy paying fee, or five times its fee when
// fee is 0, taken from its largest change output. Transactions never
// broadcast are returned signed but not sent. Broadcast ones are replaced
// on the chain and in the wallet records once fully signed.
func (w *Wallet) BumpFee(
	ctx context.Context, tx *transaction.Transaction, fee uint64,
) (*transaction.Transaction, error) {
	const op = "wallet.BumpFee"

	bumped, err := tx.BumpFee(fee)
	if err != nil {
		return nil, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}
	if err := w.Sign(ctx, bumped); err != nil {
		return nil, err
	}
	if tx.Status == transaction.StatusNew || !bumped.Verified {
		return bumped, nil
	}
	if err := bumped.CheckStandard(); err != nil {
		return nil, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}
	if _, err := w.broadcast(ctx, bumped, false, tx.TxID()); err != nil {
		return nil, err
	}
	w.log.WithFields(log.Fields{
		"replaced": tx.TxID(),
		"txid":     bumped.TxID(),
		"fee":      coinutil.NewValue(bumped.Fee, w.Network).String(),
	}).Info("fee bumped")
	return bumped, nil
}

// RemoveUnconfirmed deletes the transactions not confirmed after maxAge,
// 0 meaning the configured default, and frees the outputs they spend. It
// returns the number of transactions removed.
func (w *Wallet) RemoveUnconfirmed(ctx context.Context, maxAge time.Duration) (int, error) {
	const op = "wallet.RemoveUnconfirmed"

	if maxAge == 0 {
		maxAge = w.ctx.UnconfirmedMaxAge
	}
	l, err := w.loadLedger(ctx)
	if err != nil {
		return 0, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	before := len(l.txs)
	for _, rec := range l.stale(w.now(), maxAge) {
		l.remove(rec.TxID)
	}
	removed := before - len(l.txs)
	if removed == 0 {
		return 0, nil
	}
	if err := l.save(ctx); err != nil {
		return 0, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	w.log.WithField("count", removed).Info("unconfirmed transactions removed")
	return removed, nil
}

// Transaction rebuilds a stored transaction with the metadata needed to
// sign it again or bump its fee.
func (w *Wallet) Transaction(ctx context.Context, txid string) (*transaction.Transaction, error) {
	const op = "wallet.Transaction"

	l, err := w.loadLedger(ctx)
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
	}
	rec, ok := l.txs[txid]
	if !ok {
		return nil, errs.New(errs.ErrConfig, op, store.ErrNotFound).WithWallet(w.Name).WithTx(txid)
	}
	tx, err := transaction.NewTxFromBytes(rec.Raw)
	if err != nil {
		return nil, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}
	tx.Network = w.Network
	tx.WitnessType = w.WitnessType
	tx.Status = transaction.Status(rec.Status)
	tx.Confirmations = rec.Confirmations
	tx.BlockHeight = rec.BlockHeight
	tx.Date = rec.Date
	tx.Fee = rec.Fee
	tx.FeePerKB = rec.FeePerKB

	for i, in := range tx.Inputs {
		if i >= len(rec.Inputs) {
			break
		}
		ri := rec.Inputs[i]
		in.Value = ri.Value
		in.Address = ri.Address
		if prev := l.output(ri.PrevTxID, ri.OutputN); prev != nil {
			in.LockingScript = prev.Script
		}
		if ri.KeyID != 0 {
			if err := w.describeInput(ctx, in, ri.KeyID); err != nil {
				return nil, err
			}
		}
	}
	for i, out := range tx.Outputs {
		if i < len(rec.Outputs) {
			out.Address = rec.Outputs[i].Address
			out.Type = rec.Outputs[i].ScriptType
			out.Change = rec.Outputs[i].Change
			out.Spent = rec.Outputs[i].Spent
		}
	}
	if err := tx.Verify(); err != nil {
		w.log.WithError(err).WithField("txid", txid).Debug("stored transaction not verified")
	}
	return tx, nil
}

func (w *Wallet) rand() io.Reader {
	if w.ctx.Rand != nil {
		return w.ctx.Rand
	}
	return rand.Reader
}
