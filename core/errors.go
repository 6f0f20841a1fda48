package core

import "errors"

// Block-level errors, surfaced from BlockChain.InsertBlock to its caller (the
// slot ticker or the gossip import handler). The caller logs and drops the
// block; none of these ever partially mutate chain state.
var (
	ErrKnownBlock         = errors.New("core: block already known")
	ErrUnknownAncestor    = errors.New("core: unknown ancestor")
	ErrMismatchHash       = errors.New("core: hash mismatch")
	ErrInvalidBlockHeight = errors.New("core: invalid block height")
	ErrInvalidBlockTime   = errors.New("core: invalid block time")
	ErrInvalidAuthority   = errors.New("core: invalid authority")
	ErrInvalidBlockProof  = errors.New("core: invalid block proof")
)

// Tx-level errors. These are logged by the executor (and reported as a
// tx-skipped event) but never abort the
// containing block — the offending transaction is simply skipped.
var (
	ErrInvalidSignData  = errors.New("core: invalid transaction signature")
	ErrInvalidTxNonce   = errors.New("core: invalid transaction nonce")
	ErrBalanceNotEnough = errors.New("core: balance not enough")
)

// ErrNotFound is returned by store lookups (accounts, validators, blocks)
// that find nothing at the requested key.
var ErrNotFound = errors.New("core: not found")
