package wallet

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/descriptor"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/keys"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/store"
	"github.com/vulpemventures/go-bitcoin/transaction"
)

// ExportPsbt returns tx as a base64 BIP-174 packet, to be signed by the
// other cosigners.
func (w *Wallet) ExportPsbt(tx *transaction.Transaction) (string, error) {
	b64, err := tx.ToBase64()
	if err != nil {
		return "", wrapWallet(errs.ErrInvalidTransaction, "wallet.ExportPsbt", w.Name, err)
	}
	return b64, nil
}

// ImportPsbt decodes a base64 BIP-174 packet and completes the inputs and
// outputs it knows with the wallet keys. The returned transaction is ready
// to be signed with Sign.
func (w *Wallet) ImportPsbt(ctx context.Context, b64 string) (*transaction.Transaction, error) {
	const op = "wallet.ImportPsbt"

	tx, err := transaction.NewTxFromBase64(strings.TrimSpace(b64), w.Network)
	if err != nil {
		return nil, wrapWallet(errs.ErrInvalidTransaction, op, w.Name, err)
	}
	tx.WitnessType = w.WitnessType
	tx.Status = transaction.StatusNew

	for _, in := range tx.Inputs {
		if in.Address == "" {
			continue
		}
		rec, err := w.keyByAddress(ctx, in.Address)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if len(in.Keys) == 0 {
			if err := w.describeInput(ctx, in, rec.ID); err != nil {
				return nil, err
			}
			continue
		}
		in.KeyPath = rec.Path
	}

	for _, out := range tx.Outputs {
		addr, err := address.FromScript(out.Script, w.Network)
		if err != nil {
			continue
		}
		out.Address = addr.String()
		out.Type = addr.ScriptType
		rec, err := w.keyByAddress(ctx, out.Address)
		if err != nil {
			return nil, err
		}
		out.Change = rec != nil && rec.Change == 1
	}

	if in, out := tx.InputTotal(), tx.OutputTotal(); in >= out {
		tx.Fee = in - out
		if size := tx.VirtualSize(); size > 0 {
			tx.FeePerKB = tx.Fee * 1000 / uint64(size)
		}
	}
	if err := tx.Verify(); err != nil {
		w.log.WithError(err).WithField("txid", tx.TxID()).Debug("imported transaction not fully signed")
	}
	return tx, nil
}

// keyByAddress returns the wallet key holding addr, nil when the address
// is not the wallet's.
func (w *Wallet) keyByAddress(ctx context.Context, addr string) (*store.KeyRecord, error) {
	if addr == "" {
		return nil, nil
	}
	found, err := w.store.FindKeys(ctx, store.KeyFilter{
		Wallet:     w.Name,
		Address:    addr,
		CosignerID: store.Int(w.addressScope()),
	})
	if err != nil {
		return nil, wrapWallet(errs.ErrInternalConsistency, "wallet.keyByAddress", w.Name, err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// Descriptors returns the output descriptors of an account with their
// checksum: the receive branch, then the change branch when the key path
// has one. Keys are always exported public.
func (w *Wallet) Descriptors(ctx context.Context, account uint32) ([]string, error) {
	const op = "wallet.Descriptors"

	if err := w.checkBranch(account, 0); err != nil {
		return nil, errs.New(errs.ErrConfig, op, err).WithWallet(w.Name)
	}

	branches := []uint32{0}
	if w.levelOf(pathChange) > 0 {
		branches = append(branches, 1)
	}

	out := make([]string, 0, len(branches))
	for _, change := range branches {
		text, err := w.descriptorFor(target{account: account, change: change})
		if err != nil {
			return nil, wrapWallet(errs.ErrInvalidKey, op, w.Name, err)
		}
		d, err := descriptor.Parse(text)
		if err != nil {
			return nil, wrapWallet(errs.ErrInternalConsistency, op, w.Name, err)
		}
		out = append(out, d.String())
	}
	return out, nil
}

func (w *Wallet) descriptorFor(t target) (string, error) {
	exprs := make([]string, 0, len(w.Cosigners))
	for _, c := range w.Cosigners {
		expr, err := w.keyExpression(c.Key, t)
		if err != nil {
			return "", err
		}
		exprs = append(exprs, expr)
	}

	if w.Scheme != SchemeMultisig {
		switch w.WitnessType {
		case network.Segwit:
			return "wpkh(" + exprs[0] + ")", nil
		case network.P2SHSegwit:
			return "sh(wpkh(" + exprs[0] + "))", nil
		case network.Taproot:
			return "tr(" + exprs[0] + ")", nil
		}
		return "pkh(" + exprs[0] + ")", nil
	}

	fn := "multi"
	if w.SortKeys {
		fn = "sortedmulti"
	}
	ms := fn + "(" + strconv.Itoa(w.SigsRequired) + "," + strings.Join(exprs, ",") + ")"
	switch w.WitnessType {
	case network.Segwit:
		return "wsh(" + ms + ")", nil
	case network.P2SHSegwit:
		return "sh(wsh(" + ms + "))", nil
	}
	return "sh(" + ms + ")", nil
}

// keyExpression renders k for the branch of t: the extended public key
// at the level above the change, followed by the rest of the path and a
// wildcard for the address index.
func (w *Wallet) keyExpression(k *keys.HDKey, t target) (string, error) {
	if k.KeyType == keys.Single || w.leafDepth() == 0 {
		return hex.EncodeToString(k.PublicCompressed()), nil
	}

	full, err := w.pathOf(t, w.leafDepth())
	if err != nil {
		return "", err
	}
	depth := int(k.Depth)
	split := w.levelOf(pathChange)
	if split < 0 {
		split = w.leafDepth()
	}
	if depth > split-1 {
		split = depth + 1
	}

	branch, err := k.DerivePath(full[depth : split-1])
	if err != nil {
		return "", err
	}
	xpub, err := branch.Neuter().ExtendedPublic()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if depth == 0 {
		fp := k.Fingerprint()
		b.WriteString("[" + hex.EncodeToString(fp[:]))
		for _, i := range full[:split-1] {
			b.WriteString("/" + keys.FormatIndex(i))
		}
		b.WriteString("]")
	}
	b.WriteString(xpub)
	for _, i := range full[split-1 : w.leafDepth()-1] {
		b.WriteString("/" + keys.FormatIndex(i))
	}
	b.WriteString("/*")
	return b.String(), nil
}
