// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2019-2020 The VulpemVentures developers

/*
Package bitcoin is a hierarchical deterministic Bitcoin wallet library.

This is a walkthrough of a segwit wallet paying an address and bumping the
fee of the payment, against the in memory chain of the chain package. The
same code runs against any chain.Service and store.WalletStore.

First we need a Context. Default uses mainnet, here we switch to regtest.

	cfg := config.Default().WithNetwork(network.Regtest)
	svc := chain.NewMemoryService(network.Regtest)
	deps := wallet.Deps{Context: cfg, Store: store.NewMemoryStore(), Chain: svc}

A wallet with no keys gets a random master key, derived along
m/84'/1'/account'/change/index since segwit is the default witness type.

	w, err := wallet.Create(ctx, wallet.CreateOpts{Name: "alice"}, deps)
	if err != nil {
		return err
	}
	key, err := w.GetKey(ctx, 0, 0)
	if err != nil {
		return err
	}

Then we fund the receiving address and let the wallet scan it.

	if _, err := svc.Fund(key.Address, 100000); err != nil {
		return err
	}
	svc.Mine(1)
	if _, err := w.UtxosUpdate(ctx, 0); err != nil {
		return err
	}

SendTo selects the inputs, adds the change, signs and broadcasts. Signaling
replace-by-fee lets us raise the fee later.

	tx, err := w.SendTo(ctx, []wallet.Output{{Address: to, Value: 30000}},
		wallet.TxOpts{ReplaceByFee: true}, false)
	if err != nil {
		return err
	}

A zero fee asks BumpFee for five times the current one, taken from the
change output.

	bumped, err := w.BumpFee(ctx, tx, 0)
	if err != nil {
		return err
	}

Multisig cosigners exchange partially signed transactions as BIP-174
packets with ExportPsbt and ImportPsbt, and share the wallet layout with
Descriptors.
*/
package bitcoin
