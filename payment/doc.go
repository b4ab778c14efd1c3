/*
Package payment is an abstract for working with all kind of addresses in
Bitcoin and Bitcoin-like networks.

It can be used for the creation of p2pkh, p2ms, p2sh, non-native SegWit,
native SegWit and taproot key-path addresses, and maps the witness type of
a wallet to the payment its keys pay to.
*/
package payment
