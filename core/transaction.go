package core

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/crypto"
)

// MethodID selects the interpreter module a transaction's data is dispatched
// to, analogous to an EVM function selector but fixed to the three built-in
// methods this chain supports.
type MethodID [4]byte

var (
	MethodBalanceTransfer = MethodID{0, 0, 0, 1}
	MethodStakingDeposit  = MethodID{0, 0, 0, 2}
	MethodStakingValidate = MethodID{0, 0, 0, 3}
)

func (m MethodID) String() string {
	switch m {
	case MethodBalanceTransfer:
		return "balance.transfer"
	case MethodStakingDeposit:
		return "staking.deposit"
	case MethodStakingValidate:
		return "staking.validate"
	default:
		return fmt.Sprintf("method(%x)", [4]byte(m))
	}
}

// Signature is a self-describing Ed25519 signature: it carries the signer's
// public key alongside the signature bytes so a transaction's sender never
// needs to be stored separately — it is always recovered from here.
type Signature struct {
	PubKey [ed25519.PublicKeySize]byte `json:"pubkey"`
	Sig    [ed25519.SignatureSize]byte `json:"sig"`
}

// Transaction is the atomic unit of work submitted to the chain. The signed
// digest deliberately excludes the sender address and the signature itself
// (see signingBody): the sender is always recovered from Signature.PubKey.
type Transaction struct {
	Nonce     uint64    `json:"nonce"`
	GasPrice  uint64    `json:"gas_price"`
	Gas       uint64    `json:"gas"`
	MethodID  MethodID  `json:"method_id"`
	Data      []byte    `json:"data"`
	Signature Signature `json:"signature"`
}

// signingBody holds exactly the fields covered by a transaction's signature.
type signingBody struct {
	ChainID  uint64   `json:"chain_id"`
	Nonce    uint64   `json:"nonce"`
	GasPrice uint64   `json:"gas_price"`
	Gas      uint64   `json:"gas"`
	MethodID MethodID `json:"method_id"`
	Data     []byte   `json:"data"`
}

// SigningHash returns the digest a transaction's signature covers.
func (tx *Transaction) SigningHash(chainID uint64) common.Hash {
	body := signingBody{
		ChainID:  chainID,
		Nonce:    tx.Nonce,
		GasPrice: tx.GasPrice,
		Gas:      tx.Gas,
		MethodID: tx.MethodID,
		Data:     tx.Data,
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("core: encode signing body: %v", err))
	}
	return crypto.Hash256(data)
}

// Sign computes and stores the transaction's signature under chainID.
func (tx *Transaction) Sign(chainID uint64, priv crypto.PrivateKey) {
	pub := priv.Public()
	hash := tx.SigningHash(chainID)
	sig := crypto.Sign(priv, hash[:])
	var s Signature
	copy(s.PubKey[:], pub)
	copy(s.Sig[:], sig)
	tx.Signature = s
}

// Sender recovers the transaction's sender address from its embedded
// public key.
func (tx *Transaction) Sender() common.Address {
	return crypto.PublicKey(tx.Signature.PubKey[:]).Address()
}

// VerifySign checks that the transaction's signature is a valid Ed25519
// signature by its embedded public key over SigningHash(chainID).
func (tx *Transaction) VerifySign(chainID uint64) error {
	hash := tx.SigningHash(chainID)
	pub := crypto.PublicKey(tx.Signature.PubKey[:])
	return crypto.Verify(pub, hash[:], tx.Signature.Sig[:])
}

// Hash returns the full-envelope hash used to key a transaction in the pool
// and to build a block's tx_root. Unlike SigningHash, it covers every field
// including the signature, so two transactions that differ only in
// signature (impossible for a single signer, but relevant across senders)
// never collide.
func (tx *Transaction) Hash() common.Hash {
	data, err := json.Marshal(tx)
	if err != nil {
		panic(fmt.Sprintf("core: encode transaction: %v", err))
	}
	return crypto.Hash256(data)
}

// ---- Method payloads ----

// TransferData is the data payload for MethodBalanceTransfer.
type TransferData struct {
	Recipient common.Address `json:"recipient"`
	Value     uint64         `json:"value"`
}

// DepositData is the data payload for MethodStakingDeposit.
type DepositData struct {
	PubKey []byte `json:"pubkey"`
	Value  uint64 `json:"value"`
}

// ValidateData is the data payload for MethodStakingValidate: it moves a
// validator's deposit queue into its effective balance, activating it.
type ValidateData struct {
	ActivateHeight uint64 `json:"activate_height"`
}

// EncodeTransferData marshals p as a transaction's Data field.
func EncodeTransferData(p TransferData) []byte {
	data, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("core: encode transfer data: %v", err))
	}
	return data
}

// DecodeTransferData unmarshals a MethodBalanceTransfer Data payload.
func DecodeTransferData(data []byte) (TransferData, error) {
	var p TransferData
	if err := json.Unmarshal(data, &p); err != nil {
		return TransferData{}, fmt.Errorf("core: decode transfer data: %w", err)
	}
	return p, nil
}

// EncodeDepositData marshals p as a transaction's Data field.
func EncodeDepositData(p DepositData) []byte {
	data, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("core: encode deposit data: %v", err))
	}
	return data
}

// DecodeDepositData unmarshals a MethodStakingDeposit Data payload.
func DecodeDepositData(data []byte) (DepositData, error) {
	var p DepositData
	if err := json.Unmarshal(data, &p); err != nil {
		return DepositData{}, fmt.Errorf("core: decode deposit data: %w", err)
	}
	return p, nil
}

// EncodeValidateData marshals p as a transaction's Data field.
func EncodeValidateData(p ValidateData) []byte {
	data, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("core: encode validate data: %v", err))
	}
	return data
}

// DecodeValidateData unmarshals a MethodStakingValidate Data payload.
func DecodeValidateData(data []byte) (ValidateData, error) {
	var p ValidateData
	if err := json.Unmarshal(data, &p); err != nil {
		return ValidateData{}, fmt.Errorf("core: decode validate data: %w", err)
	}
	return p, nil
}

// ComputeTxRoot returns the deterministic root hash of an ordered tx list,
// matching Header's tx_root invariant.
func ComputeTxRoot(txs []*Transaction) common.Hash {
	hashes := make([]common.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	data, err := json.Marshal(hashes)
	if err != nil {
		panic(fmt.Sprintf("core: encode tx root: %v", err))
	}
	return crypto.Hash256(data)
}
