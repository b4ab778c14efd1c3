// Package curve exposes the secp256k1 arithmetic and ECDSA primitives the
// rest of the library is built on.
package curve

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// ErrPointAtInfinity is returned when an operation yields the identity.
	ErrPointAtInfinity = errors.New("point at infinity")
	// ErrNotOnCurve is returned for coordinates that do not satisfy y² = x³ + 7.
	ErrNotOnCurve = errors.New("point is not on curve")
	// ErrInvalidScalar is returned for scalars outside [1, n-1].
	ErrInvalidScalar = errors.New("scalar out of range")
)

var (
	params = secp256k1.Params()

	// P is the field prime.
	P = new(big.Int).Set(params.P)
	// N is the group order.
	N = new(big.Int).Set(params.N)
	// HalfN is N/2, the largest S value of a low-S signature.
	HalfN = new(big.Int).Rsh(params.N, 1)
	// G is the generator point.
	G = Point{X: new(big.Int).Set(params.Gx), Y: new(big.Int).Set(params.Gy)}
)

// Point is an affine point of the curve.
type Point struct {
	X, Y *big.Int
}

// IsOnCurve reports whether p satisfies the curve equation.
func (p Point) IsOnCurve() bool {
	if p.X == nil || p.Y == nil {
		return false
	}
	if p.X.Sign() < 0 || p.X.Cmp(P) >= 0 || p.Y.Sign() < 0 || p.Y.Cmp(P) >= 0 {
		return false
	}
	y2 := new(big.Int).Mul(p.Y, p.Y)
	y2.Mod(y2, P)
	x3 := new(big.Int).Exp(p.X, big.NewInt(3), P)
	x3.Add(x3, big.NewInt(7))
	x3.Mod(x3, P)
	return y2.Cmp(x3) == 0
}

// Compressed returns the 33-byte SEC encoding of p.
func (p Point) Compressed() []byte {
	out := make([]byte, 33)
	out[0] = 0x02
	if p.Y.Bit(0) == 1 {
		out[0] = 0x03
	}
	p.X.FillBytes(out[1:])
	return out
}

// Uncompressed returns the 65-byte SEC encoding of p.
func (p Point) Uncompressed() []byte {
	out := make([]byte, 65)
	out[0] = 0x04
	p.X.FillBytes(out[1:33])
	p.Y.FillBytes(out[33:])
	return out
}

// PublicKey converts p to a btcec public key.
func (p Point) PublicKey() (*btcec.PublicKey, error) {
	if !p.IsOnCurve() {
		return nil, ErrNotOnCurve
	}
	var x, y secp256k1.FieldVal
	x.SetByteSlice(p.X.Bytes())
	y.SetByteSlice(p.Y.Bytes())
	return secp256k1.NewPublicKey(&x, &y), nil
}

// PointFromPublicKey converts a btcec public key to a Point.
func PointFromPublicKey(pub *btcec.PublicKey) Point {
	return Point{X: pub.X(), Y: pub.Y()}
}

// ParsePoint decodes a 33 or 65 byte SEC encoded point.
func ParsePoint(b []byte) (Point, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return Point{}, err
	}
	return PointFromPublicKey(pub), nil
}

// ScalarBaseMult returns k·G.
func ScalarBaseMult(k []byte) (Point, error) {
	scalar, err := toScalar(k)
	if err != nil {
		return Point{}, err
	}
	var result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(scalar, &result)
	return fromJacobian(&result)
}

// ScalarMult returns k·p.
func ScalarMult(p Point, k []byte) (Point, error) {
	scalar, err := toScalar(k)
	if err != nil {
		return Point{}, err
	}
	jp, err := toJacobian(p)
	if err != nil {
		return Point{}, err
	}
	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(scalar, &jp, &result)
	return fromJacobian(&result)
}

// Add returns a + b.
func Add(a, b Point) (Point, error) {
	ja, err := toJacobian(a)
	if err != nil {
		return Point{}, err
	}
	jb, err := toJacobian(b)
	if err != nil {
		return Point{}, err
	}
	var result secp256k1.JacobianPoint
	secp256k1.AddNonConst(&ja, &jb, &result)
	return fromJacobian(&result)
}

// DecompressY returns the y coordinate for x with the requested parity.
func DecompressY(x *big.Int, odd bool) (*big.Int, error) {
	if x.Sign() < 0 || x.Cmp(P) >= 0 {
		return nil, ErrNotOnCurve
	}
	var fx, fy secp256k1.FieldVal
	fx.SetByteSlice(x.Bytes())
	if !secp256k1.DecompressY(&fx, odd, &fy) {
		return nil, ErrNotOnCurve
	}
	fy.Normalize()
	b := fy.Bytes()
	return new(big.Int).SetBytes(b[:]), nil
}

// ValidPrivateScalar reports whether k encodes an integer in [1, n-1].
func ValidPrivateScalar(k []byte) bool {
	_, err := toScalar(k)
	return err == nil
}

func toScalar(k []byte) (*secp256k1.ModNScalar, error) {
	if len(k) > 32 {
		return nil, ErrInvalidScalar
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(k); overflow || s.IsZero() {
		return nil, ErrInvalidScalar
	}
	return &s, nil
}

func toJacobian(p Point) (secp256k1.JacobianPoint, error) {
	var jp secp256k1.JacobianPoint
	pub, err := p.PublicKey()
	if err != nil {
		return jp, err
	}
	pub.AsJacobian(&jp)
	return jp, nil
}

func fromJacobian(jp *secp256k1.JacobianPoint) (Point, error) {
	z := jp.Z
	z.Normalize()
	if z.IsZero() {
		return Point{}, ErrPointAtInfinity
	}
	jp.ToAffine()
	x := jp.X.Bytes()
	y := jp.Y.Bytes()
	return Point{X: new(big.Int).SetBytes(x[:]), Y: new(big.Int).SetBytes(y[:])}, nil
}
