package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/meridianchain/meridian/core"
	"github.com/meridianchain/meridian/crypto"
	"github.com/meridianchain/meridian/mempool"
	"github.com/meridianchain/meridian/state"
)

// Chain is the subset of *node.Node the RPC handler depends on. Declaring
// it here (rather than importing the node package directly) keeps rpc
// free of a dependency on the orchestrator's full surface.
type Chain interface {
	Tip() core.ChainTip
	View() *state.View
	Mempool() *mempool.Mempool
	SubmitTransaction(tx *core.Transaction) error
}

// Handler holds all dependencies needed to serve RPC methods (spec §6's
// optional surface: get_balance, get_nonce, submit_transaction,
// get_transaction_status, get_latest_block_info).
type Handler struct {
	chain Chain
}

// NewHandler creates an RPC Handler over chain.
func NewHandler(chain Chain) *Handler {
	return &Handler{chain: chain}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "get_balance":
		return h.getBalance(req)
	case "get_nonce":
		return h.getNonce(req)
	case "submit_transaction":
		return h.submitTransaction(req)
	case "get_transaction_status":
		return h.getTransactionStatus(req)
	case "get_latest_block_info":
		return h.getLatestBlockInfo(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	addr, err := crypto.AddressFromHex(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	balance, err := h.chain.View().GetBalance(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": addr.Hex(), "balance": balance})
}

func (h *Handler) getNonce(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	addr, err := crypto.AddressFromHex(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	nonce, err := h.chain.View().GetNonce(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": addr.Hex(), "nonce": nonce})
}

// submitTransaction accepts a hex-encoded, JSON-marshaled transaction (spec
// §6: "submit_transaction(hex) -> tx_id"), decodes it, and hands it to the
// node for the same admission and gossip path as a peer-received tx.
func (h *Handler) submitTransaction(req Request) Response {
	var params struct {
		Hex string `json:"hex"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	raw, err := hex.DecodeString(params.Hex)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, "hex: "+err.Error())
	}
	var tx core.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "tx: "+err.Error())
	}
	if err := h.chain.SubmitTransaction(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"tx_id": tx.ID().Hex()})
}

// getTransactionStatus reports whether a transaction is currently pending
// in the mempool. The node does not maintain a historical transaction
// index (spec §4.3's Non-goals exclude a full index/explorer layer), so a
// transaction that has already been committed and pruned from the pool is
// reported as unknown rather than confirmed.
func (h *Handler) getTransactionStatus(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	id, err := crypto.HashFromHex(params.TxID)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if h.chain.Mempool().Contains(id) {
		return okResponse(req.ID, map[string]any{"status": "pending"})
	}
	return okResponse(req.ID, map[string]any{"status": "unknown"})
}

func (h *Handler) getLatestBlockInfo(req Request) Response {
	tip := h.chain.Tip()
	return okResponse(req.ID, map[string]any{"hash": tip.Hash.Hex(), "height": tip.Height})
}
