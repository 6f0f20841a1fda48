package config

import (
	"encoding/hex"
	"fmt"

	"github.com/mapprotocol/mapchain/chain"
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/crypto"
)

// BuildChainSpec translates the genesis section of cfg into the compiled-in
// ChainSpec setup_genesis applies: hex addresses resolved to common.Address,
// hex pubkeys decoded and validated, each genesis validator seeded with an
// empty linked-list position (chain.BlockChain's setupGenesis fixes up the
// Pre/Next pointers as it inserts them).
func BuildChainSpec(cfg *Config) (chain.ChainSpec, error) {
	authPub, err := decodeHexPubKey(cfg.Genesis.AuthorityPubKey)
	if err != nil {
		return chain.ChainSpec{}, fmt.Errorf("genesis authority pubkey: %w", err)
	}

	alloc := make(map[common.Address]uint64, len(cfg.Genesis.Alloc))
	for addrHex, balance := range cfg.Genesis.Alloc {
		addr, err := decodeHexAddress(addrHex)
		if err != nil {
			return chain.ChainSpec{}, fmt.Errorf("genesis alloc %q: %w", addrHex, err)
		}
		alloc[addr] = balance
	}

	validators := make([]core.Validator, 0, len(cfg.Genesis.Validators))
	for _, v := range cfg.Genesis.Validators {
		addr, err := decodeHexAddress(v.Address)
		if err != nil {
			return chain.ChainSpec{}, fmt.Errorf("genesis validator %q: %w", v.Address, err)
		}
		pub, err := decodeHexPubKey(v.PubKey)
		if err != nil {
			return chain.ChainSpec{}, fmt.Errorf("genesis validator %q pubkey: %w", v.Address, err)
		}
		validators = append(validators, core.Validator{
			Address:          addr,
			PubKey:           pub,
			Balance:          v.Balance,
			EffectiveBalance: v.EffectiveBalance,
			ActivateHeight:   v.ActivateHeight,
		})
	}

	return chain.ChainSpec{
		ChainID:                cfg.Genesis.ChainID,
		GenesisTime:            cfg.Genesis.Time,
		Alloc:                  alloc,
		GenesisValidators:      validators,
		GenesisAuthorityPubKey: crypto.PublicKey(authPub),
	}, nil
}

func decodeHexAddress(s string) (common.Address, error) {
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil || len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("must be %d-byte hex address, got %q", common.AddressLength, s)
	}
	return common.BytesToAddress(b), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
