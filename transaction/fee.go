package transaction

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/internal/bufferutil"
	"github.com/vulpemventures/go-bitcoin/network"
)

const (
	// low-S DER signature plus sighash byte, upper bound
	sigSize         = 73
	pubKeySize      = 33
	inputBaseSize   = 32 + 4 + 4
	p2shOutputSize  = 8 + 1 + 23
	p2wshOutputSize = 8 + 1 + 34
	p2trWitness     = 1 + 1 + 65
)

var (
	// ErrFeeOutOfBounds is returned when the fee rate is outside the
	// network limits.
	ErrFeeOutOfBounds = errors.New("fee rate out of network bounds")
	// ErrTooLarge is returned for transactions above the standard weight.
	ErrTooLarge = errors.New("transaction too large")
	// ErrFeeNotIncreased is returned when a bump does not raise the fee.
	ErrFeeNotIncreased = errors.New("new fee must be higher than current fee")
	// ErrNoChange is returned when there is no change output to take a
	// fee bump from.
	ErrNoChange = errors.New("no change output large enough to pay the fee bump")
)

// EstimateSize returns the expected virtual size of the signed transaction
// with nChange more change outputs, from the input types and the current
// outputs.
func (tx *Transaction) EstimateSize(nChange int) int {
	nOut := len(tx.Outputs) + nChange
	weight := (4 + 4 + bufferutil.VarIntSize(uint64(len(tx.Inputs))) +
		bufferutil.VarIntSize(uint64(nOut))) * 4

	segwit := false
	for _, in := range tx.Inputs {
		w, witness := in.estimateWeight()
		weight += w
		segwit = segwit || witness
	}
	if segwit {
		// marker and flag
		weight += 2
	}

	weight += txsizes.SumOutputSerializeSizes(wireOutputs(tx.Outputs)) * 4
	weight += nChange * tx.changeOutputSize() * 4
	return (weight + 3) / 4
}

// EstimateFee returns the fee paying feePerKB for the estimated size.
func (tx *Transaction) EstimateFee(feePerKB uint64, nChange int) uint64 {
	fee := txrules.FeeForSerializeSize(btcutil.Amount(feePerKB), tx.EstimateSize(nChange))
	return uint64(fee)
}

// changeOutputSize returns the serialized size of one change output of the
// transaction witness type.
func (tx *Transaction) changeOutputSize() int {
	multisig := false
	for _, in := range tx.Inputs {
		if in.inferType().IsMultisig() {
			multisig = true
			break
		}
	}
	switch tx.WitnessType {
	case network.Segwit:
		if multisig {
			return p2wshOutputSize
		}
		return txsizes.P2WPKHOutputSize
	case network.P2SHSegwit:
		return p2shOutputSize
	case network.Taproot:
		return p2wshOutputSize
	}
	if multisig {
		return p2shOutputSize
	}
	return txsizes.P2PKHOutputSize
}

// estimateWeight returns the weight of the input once signed and whether
// it carries a witness.
func (in *TxInput) estimateWeight() (int, bool) {
	t := in.inferType()
	switch t {
	case InputP2PK:
		return (inputBaseSize + 1 + 1 + sigSize) * 4, false
	case InputP2WPKH:
		return txsizes.RedeemP2WPKHInputSize*4 + txsizes.RedeemP2WPKHInputWitnessWeight, true
	case InputP2SHP2WPKH:
		return txsizes.RedeemNestedP2WPKHInputSize*4 + txsizes.RedeemP2WPKHInputWitnessWeight, true
	case InputP2TR:
		return (inputBaseSize+1)*4 + p2trWitness, true
	case InputP2SHMultisig, InputP2WSH, InputP2SHP2WSH:
		m, n := in.multisigShape()
		redeemSize := 3 + n*(1+pubKeySize)
		sigsSize := m * (1 + sigSize)
		witnessSize := 1 + 1 + sigsSize + bufferutil.VarIntSize(uint64(redeemSize)) + redeemSize
		switch t {
		case InputP2SHMultisig:
			scriptSig := 1 + sigsSize + pushSize(redeemSize)
			return (inputBaseSize + bufferutil.VarIntSize(uint64(scriptSig)) + scriptSig) * 4, false
		case InputP2WSH:
			return (inputBaseSize+1)*4 + witnessSize, true
		default:
			return (inputBaseSize+1+35)*4 + witnessSize, true
		}
	}
	return txsizes.RedeemP2PKHInputSize * 4, false
}

// multisigShape returns m and n of a multisig input.
func (in *TxInput) multisigShape() (int, int) {
	for _, s := range [][]byte{in.WitnessScript, in.RedeemScript} {
		details, err := address.ExtractScriptDetails(s)
		if err == nil && details.Class == address.P2MultiSigScript {
			return details.RequiredSignatures, details.NumOfPublicKeys
		}
	}
	n := len(in.Keys)
	if n == 0 {
		n = 1
	}
	m := in.SigsRequired
	if m == 0 || m > n {
		m = n
	}
	return m, n
}

func pushSize(n int) int {
	switch {
	case n <= 75:
		return 1 + n
	case n <= 0xff:
		return 2 + n
	}
	return 3 + n
}

// CheckStandard rejects transactions above the standard weight or whose
// fee rate is outside the network bounds.
func (tx *Transaction) CheckStandard() error {
	const op = "transaction.CheckStandard"

	if w := tx.Weight(); w > MaxStandardWeight {
		return errs.New(errs.ErrInvalidTransaction, op, fmt.Errorf(
			"%w: weight %d", ErrTooLarge, w,
		))
	}
	net := tx.network()
	if tx.FeePerKB < net.FeeMin || (net.FeeMax > 0 && tx.FeePerKB > net.FeeMax) {
		return errs.New(errs.ErrInvalidTransaction, op, fmt.Errorf(
			"%w: %d sat/kB not in [%d, %d]", ErrFeeOutOfBounds, tx.FeePerKB, net.FeeMin, net.FeeMax,
		))
	}
	return nil
}

// Shuffle randomly reorders the outputs with randomness read from r.
func (tx *Transaction) Shuffle(r io.Reader) error {
	var b [8]byte
	for i := len(tx.Outputs) - 1; i > 0; i-- {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		j := int(binary.LittleEndian.Uint64(b[:]) % uint64(i+1))
		tx.Outputs[i], tx.Outputs[j] = tx.Outputs[j], tx.Outputs[i]
	}
	return nil
}

// BumpFee returns an unsigned replacement of the transaction paying fee,
// or five times the current fee when fee is 0. The increase is taken from
// the largest change output, which must stay above dust.
func (tx *Transaction) BumpFee(fee uint64) (*Transaction, error) {
	const op = "transaction.BumpFee"

	current, err := tx.CalculateFee()
	if err != nil {
		return nil, err
	}
	if fee == 0 {
		fee = current * 5
	}
	if fee <= current {
		return nil, errs.New(errs.ErrInvalidTransaction, op, fmt.Errorf(
			"%w: %d <= %d", ErrFeeNotIncreased, fee, current,
		))
	}
	extra := fee - current

	change := -1
	for i, out := range tx.Outputs {
		if out.Change && (change < 0 || out.Value > tx.Outputs[change].Value) {
			change = i
		}
	}
	if change < 0 || tx.Outputs[change].Value < extra+tx.network().DustAmount {
		return nil, errs.New(errs.ErrInsufficientFunds, op, ErrNoChange)
	}

	bumped := tx.Copy()
	bumped.Outputs[change].Value -= extra
	bumped.ClearSignatures()
	bumped.Status = StatusNew
	bumped.Fee = fee
	if size := bumped.EstimateSize(0); size > 0 {
		bumped.FeePerKB = fee * 1000 / uint64(size)
	}
	return bumped, nil
}
