package wallet

import (
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the 20-byte account address derived from the public key.
func (w *Wallet) Address() common.Address {
	return w.pub.Address()
}

// newTx builds and signs a transaction for chainID with the given method and
// payload. nonce should be one past the account's current nonce.
func (w *Wallet) newTx(chainID uint64, nonce, gasPrice, gas uint64, method core.MethodID, data []byte) *core.Transaction {
	tx := &core.Transaction{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		MethodID: method,
		Data:     data,
	}
	tx.Sign(chainID, w.priv)
	return tx
}

// Transfer builds a signed balance.transfer transaction.
func (w *Wallet) Transfer(chainID uint64, to common.Address, value, nonce, gasPrice, gas uint64) *core.Transaction {
	data := core.EncodeTransferData(core.TransferData{Recipient: to, Value: value})
	return w.newTx(chainID, nonce, gasPrice, gas, core.MethodBalanceTransfer, data)
}

// Deposit builds a signed staking.deposit transaction, registering (or
// topping up) a validator candidacy under this wallet's own pubkey.
func (w *Wallet) Deposit(chainID uint64, value, nonce, gasPrice, gas uint64) *core.Transaction {
	data := core.EncodeDepositData(core.DepositData{PubKey: []byte(w.pub), Value: value})
	return w.newTx(chainID, nonce, gasPrice, gas, core.MethodStakingDeposit, data)
}

// Validate builds a signed staking.validate transaction, activating a prior
// deposit at activateHeight.
func (w *Wallet) Validate(chainID uint64, activateHeight, nonce, gasPrice, gas uint64) *core.Transaction {
	data := core.EncodeValidateData(core.ValidateData{ActivateHeight: activateHeight})
	return w.newTx(chainID, nonce, gasPrice, gas, core.MethodStakingValidate, data)
}
