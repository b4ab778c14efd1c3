package coinutil

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vulpemventures/go-bitcoin/errs"
	"github.com/vulpemventures/go-bitcoin/network"
)

var (
	// ErrInvalidValue is returned for amounts that can't be parsed.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnknownDenomination is returned for unit names not known for the
	// network.
	ErrUnknownDenomination = errors.New("unknown denomination")
	// ErrValueOverflow is returned when an amount doesn't fit in 64 bits.
	ErrValueOverflow = errors.New("value overflow")
	// ErrNegativeValue is returned when a subtraction goes below zero or a
	// negative amount is parsed.
	ErrNegativeValue = errors.New("negative value")
	// ErrNetworkMismatch is returned for arithmetic across networks.
	ErrNetworkMismatch = errors.New("values of different networks")
)

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// Value is an amount of a network currency, in its smallest unit.
type Value struct {
	Sat     uint64
	Network *network.Network
}

// NewValue returns a value of sat smallest units of net currency.
func NewValue(sat uint64, net *network.Network) Value {
	if net == nil {
		net = network.Bitcoin
	}
	return Value{Sat: sat, Network: net}
}

// ParseValue parses an amount with an optional unit, like "1.5 BTC",
// "150000 sat", "2 mBTC" or "0.1". Amounts without unit are in the
// network currency.
func ParseValue(str string, net *network.Network) (Value, error) {
	const op = "coinutil.ParseValue"
	if net == nil {
		net = network.Bitcoin
	}

	fields := strings.Fields(str)
	if len(fields) == 0 || len(fields) > 2 {
		return Value{}, errs.New(errs.ErrConfig, op, fmt.Errorf("%w: %q", ErrInvalidValue, str))
	}
	exp := int32(0)
	if len(fields) == 2 {
		var ok bool
		if exp, ok = unitExponent(fields[1], net); !ok {
			return Value{}, errs.New(errs.ErrConfig, op, fmt.Errorf("%w: %s", ErrUnknownDenomination, fields[1]))
		}
	}

	amount, err := decimal.NewFromString(fields[0])
	if err != nil {
		return Value{}, errs.New(errs.ErrConfig, op, fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}
	if amount.Sign() < 0 {
		return Value{}, errs.New(errs.ErrConfig, op, ErrNegativeValue)
	}
	sat := amount.Shift(exp - net.Denominator)
	if !sat.Equal(sat.Truncate(0)) {
		return Value{}, errs.New(errs.ErrConfig, op, fmt.Errorf(
			"%w: %s has more than %d decimals", ErrInvalidValue, fields[0], -net.Denominator+exp,
		))
	}
	if sat.GreaterThan(maxUint64) {
		return Value{}, errs.New(errs.ErrConfig, op, ErrValueOverflow)
	}
	return Value{Sat: sat.BigInt().Uint64(), Network: net}, nil
}

// unitExponent returns the power of ten of a unit, relative to the
// network currency.
func unitExponent(unit string, net *network.Network) (int32, bool) {
	code := strings.ToLower(net.CurrencyCode)
	switch u := strings.ToLower(unit); u {
	case code:
		return 0, true
	case "m" + code:
		return -3, true
	case "u" + code, "µ" + code, "bits":
		return -6, true
	case "sat", "sats", "satoshi", "satoshis":
		return net.Denominator, true
	}
	return 0, false
}

// Decimal returns the amount in the network currency.
func (v Value) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v.Sat), v.network().Denominator)
}

// String returns the amount with all the decimals of the network and its
// currency code, e.g. "1.50000000 BTC".
func (v Value) String() string {
	net := v.network()
	return fmt.Sprintf("%s %s", v.Decimal().StringFixed(-net.Denominator), net.CurrencyCode)
}

// Str returns the amount expressed in the unit of the given power of ten,
// e.g. -3 for mBTC or the network denominator for satoshis.
func (v Value) Str(exp int32) string {
	net := v.network()
	if exp <= net.Denominator {
		return fmt.Sprintf("%d sat", v.Sat)
	}
	amount := v.Decimal().Shift(-exp).StringFixed(exp - net.Denominator)
	switch exp {
	case 0:
		return fmt.Sprintf("%s %s", amount, net.CurrencyCode)
	case -3:
		return fmt.Sprintf("%s m%s", amount, net.CurrencyCode)
	case -6:
		return fmt.Sprintf("%s u%s", amount, net.CurrencyCode)
	}
	return fmt.Sprintf("%se%d %s", amount, exp, net.CurrencyCode)
}

// Add returns the sum of two values of the same network.
func (v Value) Add(o Value) (Value, error) {
	if err := v.checkNetwork(o, "coinutil.Value.Add"); err != nil {
		return Value{}, err
	}
	if v.Sat > math.MaxUint64-o.Sat {
		return Value{}, errs.New(errs.ErrConfig, "coinutil.Value.Add", ErrValueOverflow)
	}
	return Value{Sat: v.Sat + o.Sat, Network: v.network()}, nil
}

// Sub returns the difference of two values of the same network.
func (v Value) Sub(o Value) (Value, error) {
	if err := v.checkNetwork(o, "coinutil.Value.Sub"); err != nil {
		return Value{}, err
	}
	if o.Sat > v.Sat {
		return Value{}, errs.New(errs.ErrInsufficientFunds, "coinutil.Value.Sub", ErrNegativeValue)
	}
	return Value{Sat: v.Sat - o.Sat, Network: v.network()}, nil
}

// Cmp compares two values like bytes.Compare.
func (v Value) Cmp(o Value) int {
	switch {
	case v.Sat < o.Sat:
		return -1
	case v.Sat > o.Sat:
		return 1
	}
	return 0
}

func (v Value) checkNetwork(o Value, op string) error {
	if v.network() != o.network() {
		return errs.New(errs.ErrConfig, op, fmt.Errorf("%w: %s and %s",
			ErrNetworkMismatch, v.network().Name, o.network().Name))
	}
	return nil
}

func (v Value) network() *network.Network {
	if v.Network == nil {
		return network.Bitcoin
	}
	return v.Network
}
