package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

const rsaKeyBits = 2048

// Generate creates a new private JWK for algorithm with the given kid.
func Generate(algorithm, kid string) (JWK, error) {
	var (
		signer crypto.Signer
		err    error
	)
	switch algorithm {
	case AlgorithmRS256, "":
		signer, err = rsa.GenerateKey(rand.Reader, rsaKeyBits)
	case AlgorithmEdDSA:
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	default:
		return JWK{}, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if err != nil {
		return JWK{}, fmt.Errorf("generate %s key: %w", algorithm, err)
	}
	return PrivateJWK(kid, signer)
}
