package crypto

import (
	"crypto/ed25519"
	"errors"
)

// SignatureSize is the length in bytes of an ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// Sign signs data with the private key and returns the raw signature bytes.
func Sign(priv PrivateKey, data []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv), data)
}

// Verify checks a raw signature against data using the public key.
func Verify(pub PublicKey, data, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return errors.New("crypto: public key has wrong length")
	}
	if len(sig) != ed25519.SignatureSize {
		return errors.New("crypto: signature has wrong length")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return errors.New("crypto: signature verification failed")
	}
	return nil
}
