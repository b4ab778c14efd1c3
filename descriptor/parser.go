package descriptor

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/keys"
)

// script expression contexts
const (
	topContext = iota
	shContext
	wshContext
)

var scriptExp = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Parse parses a descriptor, validating its checksum when present.
func Parse(descriptor string) (Wallet, error) {
	d, err := trimAndValidateChecksum(descriptor)
	if err != nil {
		return nil, err
	}
	d = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, d)

	expr, err := parseScriptExpression(d, topContext)
	if err != nil {
		return nil, err
	}
	return &descriptorWallet{expr: expr, text: d}, nil
}

func trimAndValidateChecksum(descriptor string) (string, error) {
	str := strings.Split(descriptor, "#")
	switch len(str) {
	case 1:
		return str[0], nil
	case 2:
		if err := validateChecksum(str[0], str[1]); err != nil {
			return "", err
		}

		return str[0], nil
	default:
		return "", errors.New("descriptor should contain one # symbol")
	}
}

func validateChecksum(descriptor, checksum string) error {
	if len(checksum) != checksumLength {
		return ErrInvalidChecksumLength
	}
	expected, err := Checksum(descriptor)
	if err != nil {
		return err
	}
	if expected != checksum {
		return fmt.Errorf("%w: expected %s", ErrInvalidChecksum, expected)
	}
	return nil
}

func parseScriptExpression(descriptor string, context int) (*expression, error) {
	expressionFunc, innerExpression, err := splitFuncAndScriptExpression(descriptor)
	if err != nil {
		return nil, err
	}

	switch expressionFunc {
	case "sh":
		if context != topContext {
			return nil, errors.New("sh is only allowed at top level")
		}
		inner, err := parseScriptExpression(innerExpression, shContext)
		if err != nil {
			return nil, err
		}
		return &expression{fn: expressionFunc, inner: inner}, nil
	case "wsh":
		if context == wshContext {
			return nil, errors.New("wsh can't be nested in wsh")
		}
		inner, err := parseScriptExpression(innerExpression, wshContext)
		if err != nil {
			return nil, err
		}
		return &expression{fn: expressionFunc, inner: inner}, nil
	case "pk", "pkh":
		key, err := parseKeyExpression(innerExpression, false)
		if err != nil {
			return nil, err
		}
		return &expression{fn: expressionFunc, keys: []*keyInfo{key}}, nil
	case "wpkh":
		if context == wshContext {
			return nil, errors.New("wpkh can't be nested in wsh")
		}
		key, err := parseKeyExpression(innerExpression, false)
		if err != nil {
			return nil, err
		}
		return &expression{fn: expressionFunc, keys: []*keyInfo{key}}, nil
	case "multi", "sortedmulti":
		return parseMulti(expressionFunc, innerExpression, context)
	case "tr":
		if context != topContext {
			return nil, errors.New("tr is only allowed at top level")
		}
		if strings.Contains(innerExpression, ",") {
			return nil, errors.New("tr script trees are not supported")
		}
		key, err := parseKeyExpression(innerExpression, true)
		if err != nil {
			return nil, err
		}
		return &expression{fn: expressionFunc, keys: []*keyInfo{key}}, nil
	case "addr":
		if context != topContext {
			return nil, errors.New("addr is only allowed at top level")
		}
		addr, err := address.Parse(innerExpression, nil)
		if err != nil {
			return nil, err
		}
		return &expression{fn: expressionFunc, raw: addr.Script()}, nil
	case "raw":
		if context != topContext {
			return nil, errors.New("raw is only allowed at top level")
		}
		script, err := hex.DecodeString(innerExpression)
		if err != nil {
			return nil, fmt.Errorf("invalid raw script: %w", err)
		}
		return &expression{fn: expressionFunc, raw: script}, nil
	}

	return nil, fmt.Errorf("unknown expression: %s", expressionFunc)
}

func parseMulti(fn, args string, context int) (*expression, error) {
	if context == topContext {
		return nil, fmt.Errorf("%s must be nested in sh or wsh", fn)
	}
	parts := strings.Split(args, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%s needs a threshold and at least one key", fn)
	}
	threshold, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid threshold %q", parts[0])
	}
	if threshold < 1 || threshold > len(parts)-1 {
		return nil, fmt.Errorf("threshold %d out of range [1, %d]", threshold, len(parts)-1)
	}

	expr := &expression{fn: fn, threshold: threshold}
	for _, p := range parts[1:] {
		key, err := parseKeyExpression(p, false)
		if err != nil {
			return nil, err
		}
		expr.keys = append(expr.keys, key)
	}
	return expr, nil
}

func splitFuncAndScriptExpression(s string) (string, string, error) {
	matches := scriptExp.FindStringSubmatch(s)
	if matches == nil {
		return "", "", errors.New("invalid script")
	}

	if len(matches) != 3 {
		return "", "", errors.New("invalid script")
	}

	return matches[1], matches[2], nil
}

type keyInfo struct {
	keyOrigin *keyOriginInfo
	key       *keys.HDKey
	// xonly marks 32 bytes keys of tr expressions
	xonly           bool
	extendedKeyInfo *extendedKeyInfo
}

func parseKeyExpression(keyExpression string, xonly bool) (*keyInfo, error) {
	keyOriginInfo, err := parseKeyOriginInfo(keyExpression)
	if err != nil {
		return nil, err
	}

	keyExpressionTrimmed, err := trimKeyOriginInfo(keyExpression)
	if err != nil {
		return nil, err
	}

	key, extendedKey, err := parseKey(keyExpressionTrimmed, xonly)
	if err != nil {
		return nil, err
	}

	return &keyInfo{
		keyOrigin:       keyOriginInfo,
		key:             key,
		xonly:           xonly,
		extendedKeyInfo: extendedKey,
	}, nil
}

func parseKeyOriginInfo(keyExpression string) (*keyOriginInfo, error) {
	keyExpressionSplit := strings.Split(keyExpression, "]")

	switch len(keyExpressionSplit) {
	case 1:
		return nil, nil
	case 2:
		keyOriginInfo := &keyOriginInfo{}
		if keyExpressionSplit[0][0:1] != "[" {
			return nil, errors.New("key origin start '[ character expected but not found")
		}

		keyOriginSplit := strings.Split(keyExpressionSplit[0], "/")
		fingerprint := keyOriginSplit[0][1:]
		if len(fingerprint) != 8 {
			return nil, errors.New("fingerprint should be 8 char long")
		}

		fingerprintBytes, err := hex.DecodeString(fingerprint)
		if err != nil {
			return nil, fmt.Errorf("fingerprint not valid hex, err: %v", err.Error())
		}

		copy(keyOriginInfo.masterKeyFingerprint[:], fingerprintBytes)
		if len(keyOriginSplit) > 1 {
			path, err := parsePath(keyOriginSplit[1:])
			if err != nil {
				return nil, err
			}

			keyOriginInfo.path = path
		}

		return keyOriginInfo, nil

	default:
		return nil, errors.New("multiple ']' characters found for a single pubkey")
	}
}

func trimKeyOriginInfo(keyExpression string) (string, error) {
	keyExpressionSplit := strings.Split(keyExpression, "]")

	switch len(keyExpressionSplit) {
	case 1:
		return keyExpressionSplit[0], nil
	case 2:
		return keyExpressionSplit[1], nil
	default:
		return "", errors.New("multiple ']' characters found for a single pubkey")
	}
}

func parsePath(components []string) ([]uint32, error) {
	result := make([]uint32, 0)

	if len(components) == 0 {
		return nil, nil
	}

	for _, component := range components {
		component = strings.TrimSpace(component)
		var value uint32

		if strings.HasSuffix(component, "'") {
			value = hdkeychain.HardenedKeyStart
			component = strings.TrimSpace(
				strings.TrimSuffix(
					component,
					"'",
				),
			)
		} else if strings.HasSuffix(component, "h") {
			value = hdkeychain.HardenedKeyStart
			component = strings.TrimSpace(
				strings.TrimSuffix(
					component,
					"h",
				),
			)
		}
		bigval, ok := new(big.Int).SetString(component, 10)
		if !ok {
			return nil, fmt.Errorf("invalid component: %s", component)
		}
		max := math.MaxUint32 - value
		if value != 0 {
			max = hdkeychain.HardenedKeyStart - 1
		}
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("component %v out of allowed "+
					"range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("component %v out of allowed "+
				"hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		result = append(result, value)
	}
	return result, nil
}

type keyOriginInfo struct {
	masterKeyFingerprint [4]byte
	path                 []uint32
}

type extendedKeyInfo struct {
	path          []uint32
	isRange       bool
	hardenedRange bool
}

func parseKey(keyExpression string, xonly bool) (*keys.HDKey, *extendedKeyInfo, error) {
	var (
		key     string
		pathStr string
	)

	keyExpSplit := strings.Split(keyExpression, "/")
	key = keyExpSplit[0]
	if len(keyExpSplit) > 1 {
		pathStr = keyExpression[len(keyExpSplit[0]):]
	}

	if xonly && len(key) == 64 {
		b, err := hex.DecodeString(key)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid x-only key: %w", err)
		}
		pub, err := schnorr.ParsePubKey(b)
		if err != nil {
			return nil, nil, err
		}
		k, err := keys.NewKeyFromPublic(pub.SerializeCompressed(), nil)
		if err != nil {
			return nil, nil, err
		}
		return keys.NewHDKeyFromKey(k, ""), nil, nil
	}

	if isPubKey(key) && pathStr == "" {
		k, err := keys.ParseAuto(key, nil, keys.ParseOpts{})
		return k, nil, err
	}

	m, err := keys.Detect(key, nil)
	if err != nil {
		return nil, nil, errors.New("unrecognised key")
	}
	hd, err := m.Key(keys.ParseOpts{})
	if err != nil {
		return nil, nil, err
	}

	switch m.Kind {
	case keys.WIF:
		if pathStr != "" {
			return nil, nil, errors.New("only extended keys can have a derivation path")
		}
		return hd, nil, nil
	case keys.ExtendedKey:
		info := &extendedKeyInfo{}
		if pathStr != "" {
			pathStr = pathStr[1:] // remove prefix '/'
			switch {
			case strings.HasSuffix(pathStr, "*'"), strings.HasSuffix(pathStr, "*h"):
				info.isRange = true
				info.hardenedRange = true
				pathStr = pathStr[:len(pathStr)-2]
			case strings.HasSuffix(pathStr, "*"):
				info.isRange = true
				pathStr = pathStr[:len(pathStr)-1]
			}
			pathStr = strings.TrimSuffix(pathStr, "/")
			if pathStr != "" {
				path, err := parsePath(strings.Split(pathStr, "/"))
				if err != nil {
					return nil, nil, err
				}
				info.path = path
			}
		}
		return hd, info, nil
	}

	return nil, nil, errors.New("unrecognised key")
}

func isPubKey(pubKey string) bool {
	pubKeyBytes, err := hex.DecodeString(pubKey)
	if err != nil {
		return false
	}

	_, err = btcec.ParsePubKey(pubKeyBytes)
	return err == nil
}
