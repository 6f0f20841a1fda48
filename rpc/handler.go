package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mapprotocol/mapchain/chain"
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/indexer"
	"github.com/mapprotocol/mapchain/txpool"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *chain.BlockChain
	pool    *txpool.TxPool
	idx     *indexer.Indexer
	chainID uint64 // expected chain_id; rejects cross-chain replay transactions
}

// NewHandler creates an RPC Handler. idx may be nil, in which case the
// tx-history methods report an internal error instead of panicking.
func NewHandler(bc *chain.BlockChain, pool *txpool.TxPool, idx *indexer.Indexer, chainID uint64) *Handler {
	return &Handler{bc: bc, pool: pool, idx: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "map_blockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "map_getBlock":
		return h.getBlock(req)

	case "map_getBalance":
		return h.getBalance(req)

	case "map_getValidator":
		return h.getValidator(req)

	case "map_sendTransaction":
		return h.sendTransaction(req)

	case "map_poolSize":
		return okResponse(req.ID, h.pool.Size())

	case "map_getTxsByAddress":
		return h.getTxsByAddress(req)

	case "map_getTxsByValidator":
		return h.getTxsByValidator(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string  `json:"hash"`
		Height *uint64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	switch {
	case params.Hash != "":
		var hash common.Hash
		hash, err = decodeHash(params.Hash)
		if err == nil {
			block, err = h.bc.GetBlock(hash)
		}
	case params.Height != nil:
		block, err = h.bc.GetBlockByNumber(*params.Height)
	default:
		block = h.bc.CurrentBlock()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	addr, err := decodeAddress(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	head := h.bc.CurrentBlock()
	if head == nil {
		return errResponse(req.ID, CodeInternalError, "chain not loaded")
	}
	balance := core.NewBalance(h.bc.StateAt(head.Header.StateRoot))
	acc, err := balance.GetAccount(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getValidator(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	addr, err := decodeAddress(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}

	head := h.bc.CurrentBlock()
	if head == nil {
		return errResponse(req.ID, CodeInternalError, "chain not loaded")
	}
	staking := core.NewStaking(h.bc.StateAt(head.Header.StateRoot))
	v, ok, err := staking.GetValidator(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if !ok {
		return errResponse(req.ID, CodeInternalError, "validator not found")
	}
	return okResponse(req.ID, v)
}

func (h *Handler) getTxsByAddress(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if h.idx == nil {
		return errResponse(req.ID, CodeInternalError, "tx indexing is not enabled")
	}
	txs, err := h.idx.GetTxsByAddress(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "txs": txs})
}

func (h *Handler) getTxsByValidator(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if h.idx == nil {
		return errResponse(req.ID, CodeInternalError, "tx indexing is not enabled")
	}
	txs, err := h.idx.GetTxsByValidator(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "txs": txs})
}

func (h *Handler) sendTransaction(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := tx.VerifySign(h.chainID); err != nil {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("signature/chain_id mismatch for chain %d: %v", h.chainID, err))
	}
	if err := h.pool.Submit(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	hash := tx.Hash()
	return okResponse(req.ID, map[string]string{"tx_hash": hash.Hex()})
}

func decodeHash(s string) (common.Hash, error) {
	b, err := hex.DecodeString(trimHex(s))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q", s)
	}
	return common.BytesToHash(b), nil
}

func decodeAddress(s string) (common.Address, error) {
	b, err := hex.DecodeString(trimHex(s))
	if err != nil || len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.BytesToAddress(b), nil
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
