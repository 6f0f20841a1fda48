package network

import (
	"encoding/json"
	"log"

	"github.com/mapprotocol/mapchain/chain"
	"github.com/mapprotocol/mapchain/core"
)

// BlocksByRange asks a peer for blocks starting at StartSlot, Count of them,
// every Step-th one (Step=1 for a dense range).
type BlocksByRange struct {
	StartSlot uint64 `json:"start_slot"`
	Count     uint64 `json:"count"`
	Step      uint64 `json:"step"`
}

// BlocksResponse carries a batch of blocks answering a BlocksByRange request.
type BlocksResponse struct {
	Blocks []*core.Block `json:"blocks"`
}

// Syncer handles block synchronisation between nodes. Both a received gossip
// block and a requested range answer are accepted the same way: handed to
// chain.BlockChain.InsertBlock, which validates, executes and persists (or
// rejects) atomically — the syncer itself holds no block-to-state pipeline
// of its own.
type Syncer struct {
	node *Node
	bc   *chain.BlockChain
}

// NewSyncer creates a Syncer that imports gossiped blocks and answers range
// requests from bc's local store.
func NewSyncer(node *Node, bc *chain.BlockChain) *Syncer {
	s := &Syncer{node: node, bc: bc}
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	node.Handle(MsgBlock, s.handleBlock)
	return s
}

// RequestBlocks asks peer for a range of blocks starting at startSlot.
func (s *Syncer) RequestBlocks(peer *Peer, startSlot uint64) error {
	req, err := json.Marshal(BlocksByRange{StartSlot: startSlot, Count: 50, Step: 1})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req BlocksByRange
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Count == 0 || req.Count > 200 {
		req.Count = 50
	}
	if req.Step == 0 {
		req.Step = 1
	}
	blocks := make([]*core.Block, 0, req.Count)
	for i := uint64(0); i < req.Count; i++ {
		height := req.StartSlot + i*req.Step
		b, err := s.bc.GetBlockByNumber(height)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		return
	}
	_ = peer.Send(Message{Type: MsgBlocks, Payload: data})
}

func (s *Syncer) handleBlocks(_ *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		if err := s.bc.InsertBlock(b); err != nil {
			log.Printf("[sync] block %d import failed: %v", b.Header.Height, err)
			continue
		}
	}
}

// handleBlock imports a single gossiped block, re-propagating it to other
// peers on success and dropping it on failure.
func (s *Syncer) handleBlock(_ *Peer, msg Message) {
	var b core.Block
	if err := json.Unmarshal(msg.Payload, &b); err != nil {
		log.Printf("[sync] unmarshal gossiped block: %v", err)
		return
	}
	if err := s.bc.InsertBlock(&b); err != nil {
		log.Printf("[sync] gossiped block %d rejected: %v", b.Header.Height, err)
		return
	}
	s.node.BroadcastBlock(&b)
}
