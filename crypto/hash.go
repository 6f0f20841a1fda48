package crypto

import (
	"golang.org/x/crypto/blake2b"

	"github.com/mapprotocol/mapchain/common"
)

// Hash256 returns the blake2b-256 digest of data.
func Hash256(data ...[]byte) common.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors on an oversized key, and we never pass one.
		panic("crypto: blake2b.New256: " + err.Error())
	}
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}
