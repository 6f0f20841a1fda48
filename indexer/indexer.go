// Package indexer maintains secondary indexes over executed transactions so
// RPC clients can answer "what has this address done" without walking every
// historical block.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/kv"
)

const (
	prefixAddressTxs      = "idx:address:tx:"
	prefixValidatorEvents = "idx:validator:tx:"
)

// Indexer subscribes to executor events and updates secondary lookup tables.
type Indexer struct {
	db      kv.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db kv.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventBalanceTransfer, idx.onBalanceTransfer)
	emitter.Subscribe(events.EventStakingDeposit, idx.onStakingEvent)
	emitter.Subscribe(events.EventStakingValidate, idx.onStakingEvent)
	return idx
}

// GetTxsByAddress returns every transaction hash (hex) known to involve addr
// as a balance.transfer participant.
func (idx *Indexer) GetTxsByAddress(addr string) ([]string, error) {
	return idx.getList(prefixAddressTxs + addr)
}

// GetTxsByValidator returns every transaction hash (hex) recorded against a
// validator's staking history.
func (idx *Indexer) GetTxsByValidator(addr string) ([]string, error) {
	return idx.getList(prefixValidatorEvents + addr)
}

func (idx *Indexer) onBalanceTransfer(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	hash := ev.TxID.Hex()
	for _, addr := range []string{from, to} {
		if addr == "" {
			continue
		}
		if err := idx.addToList(prefixAddressTxs+addr, hash); err != nil {
			log.Printf("[indexer] transfer index write failed (addr=%s tx=%s): %v", addr, hash, err)
		}
	}
}

func (idx *Indexer) onStakingEvent(ev events.Event) {
	addr, _ := ev.Data["address"].(string)
	if addr == "" {
		return
	}
	hash := ev.TxID.Hex()
	if err := idx.addToList(prefixValidatorEvents+addr, hash); err != nil {
		log.Printf("[indexer] validator index write failed (addr=%s tx=%s): %v", addr, hash, err)
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil // already present
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
