package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Supported signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmEdDSA = "EdDSA"
)

// ErrInvalidJWK is returned when key material cannot be decoded.
var ErrInvalidJWK = errors.New("invalid jwk")

// JWK is a JSON Web Key. Private members are only populated for key material
// held by the secret store and are never published.
type JWK struct {
	KTY string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	KID string `json:"kid"`

	// RSA
	N  string `json:"n,omitempty"`
	E  string `json:"e,omitempty"`
	D  string `json:"d,omitempty"`
	P  string `json:"p,omitempty"`
	Q  string `json:"q,omitempty"`
	DP string `json:"dp,omitempty"`
	DQ string `json:"dq,omitempty"`
	QI string `json:"qi,omitempty"`

	// OKP
	CRV string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
}

// JWKSet is the published key set document.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// Find returns the key with the given kid.
func (s *JWKSet) Find(kid string) (JWK, bool) {
	if s == nil {
		return JWK{}, false
	}
	for _, k := range s.Keys {
		if k.KID == kid {
			return k, true
		}
	}
	return JWK{}, false
}

// SigningKey is the decoded current key pair.
type SigningKey struct {
	KeyID     string
	Algorithm string
	Private   crypto.Signer
	Public    crypto.PublicKey
}

// ParsePrivateJWK decodes a private JWK JSON document as stored in the
// secret store.
func ParsePrivateJWK(data []byte) (*SigningKey, error) {
	var k JWK
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJWK, err)
	}
	if strings.TrimSpace(k.KID) == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrInvalidJWK)
	}

	switch k.KTY {
	case "RSA":
		priv, err := k.rsaPrivateKey()
		if err != nil {
			return nil, err
		}
		return &SigningKey{KeyID: k.KID, Algorithm: AlgorithmRS256, Private: priv, Public: &priv.PublicKey}, nil
	case "OKP":
		if k.CRV != "Ed25519" {
			return nil, fmt.Errorf("%w: unsupported curve %q", ErrInvalidJWK, k.CRV)
		}
		seed, err := decodeSegment(k.D)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: ed25519 seed", ErrInvalidJWK)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return &SigningKey{KeyID: k.KID, Algorithm: AlgorithmEdDSA, Private: priv, Public: priv.Public()}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported kty %q", ErrInvalidJWK, k.KTY)
	}
}

// PublicKey decodes the public half of k.
func (k JWK) PublicKey() (crypto.PublicKey, error) {
	switch k.KTY {
	case "RSA":
		return k.rsaPublicKey()
	case "OKP":
		if k.CRV != "Ed25519" {
			return nil, fmt.Errorf("%w: unsupported curve %q", ErrInvalidJWK, k.CRV)
		}
		x, err := decodeSegment(k.X)
		if err != nil || len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: ed25519 public key", ErrInvalidJWK)
		}
		return ed25519.PublicKey(x), nil
	default:
		return nil, fmt.Errorf("%w: unsupported kty %q", ErrInvalidJWK, k.KTY)
	}
}

// Public strips private members.
func (k JWK) Public() JWK {
	return JWK{KTY: k.KTY, Use: k.Use, Alg: k.Alg, KID: k.KID, N: k.N, E: k.E, CRV: k.CRV, X: k.X}
}

// PrivateJWK encodes a signer as a private JWK.
func PrivateJWK(kid string, signer crypto.Signer) (JWK, error) {
	switch priv := signer.(type) {
	case *rsa.PrivateKey:
		if len(priv.Primes) != 2 {
			return JWK{}, fmt.Errorf("%w: multi-prime rsa keys are not supported", ErrInvalidJWK)
		}
		priv.Precompute()
		k := rsaPublicJWK(kid, &priv.PublicKey)
		k.D = encodeInt(priv.D)
		k.P = encodeInt(priv.Primes[0])
		k.Q = encodeInt(priv.Primes[1])
		k.DP = encodeInt(priv.Precomputed.Dp)
		k.DQ = encodeInt(priv.Precomputed.Dq)
		k.QI = encodeInt(priv.Precomputed.Qinv)
		return k, nil
	case ed25519.PrivateKey:
		k := JWK{KTY: "OKP", Use: "sig", Alg: AlgorithmEdDSA, KID: kid, CRV: "Ed25519"}
		k.X = base64.RawURLEncoding.EncodeToString(priv.Public().(ed25519.PublicKey))
		k.D = base64.RawURLEncoding.EncodeToString(priv.Seed())
		return k, nil
	default:
		return JWK{}, fmt.Errorf("%w: unsupported signer %T", ErrInvalidJWK, signer)
	}
}

func rsaPublicJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		KTY: "RSA",
		Use: "sig",
		Alg: AlgorithmRS256,
		KID: kid,
		N:   encodeInt(pub.N),
		E:   encodeInt(big.NewInt(int64(pub.E))),
	}
}

func (k JWK) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := decodeInt(k.N)
	if err != nil {
		return nil, fmt.Errorf("%w: modulus", ErrInvalidJWK)
	}
	e, err := decodeInt(k.E)
	if err != nil || !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: exponent", ErrInvalidJWK)
	}
	if n.BitLen() < 2048 {
		return nil, fmt.Errorf("%w: rsa modulus below 2048 bits", ErrInvalidJWK)
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func (k JWK) rsaPrivateKey() (*rsa.PrivateKey, error) {
	pub, err := k.rsaPublicKey()
	if err != nil {
		return nil, err
	}
	d, err := decodeInt(k.D)
	if err != nil {
		return nil, fmt.Errorf("%w: private exponent", ErrInvalidJWK)
	}
	p, err := decodeInt(k.P)
	if err != nil {
		return nil, fmt.Errorf("%w: prime p", ErrInvalidJWK)
	}
	q, err := decodeInt(k.Q)
	if err != nil {
		return nil, fmt.Errorf("%w: prime q", ErrInvalidJWK)
	}

	priv := &rsa.PrivateKey{PublicKey: *pub, D: d, Primes: []*big.Int{p, q}}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJWK, err)
	}
	priv.Precompute()
	return priv, nil
}

func decodeSegment(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty segment")
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func decodeInt(s string) (*big.Int, error) {
	b, err := decodeSegment(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func encodeInt(i *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(i.Bytes())
}
