// Package metrics exposes Prometheus counters and gauges for the chain
// engine, scheduler, and tx pool, and serves them over HTTP for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BlocksImported counts every block that passed insert_block, whether
	// proposed locally or received via gossip.
	BlocksImported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapchain",
		Name:      "blocks_imported_total",
		Help:      "Total number of blocks successfully imported.",
	})

	// ChainHeadHeight tracks the current chain head's height.
	ChainHeadHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapchain",
		Name:      "chain_head_height",
		Help:      "Height of the current chain head.",
	})

	// TxPoolSize tracks the number of pending transactions.
	TxPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapchain",
		Name:      "txpool_size",
		Help:      "Number of transactions currently pending in the tx pool.",
	})

	// SlotProposalsAttempted counts every slot this node held and attempted
	// to propose for, regardless of outcome.
	SlotProposalsAttempted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapchain",
		Name:      "slot_proposals_attempted_total",
		Help:      "Total number of slots this node attempted to propose a block for.",
	})

	// SlotProposalsWon counts proposals that were successfully imported.
	SlotProposalsWon = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapchain",
		Name:      "slot_proposals_won_total",
		Help:      "Total number of proposed blocks that were successfully imported.",
	})

	// TxExecuted counts transactions the executor dispatched successfully.
	TxExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapchain",
		Name:      "tx_executed_total",
		Help:      "Total number of transactions executed successfully.",
	})

	// TxSkipped counts transactions the executor skipped (bad signature,
	// nonce, insufficient balance, or a failing method).
	TxSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapchain",
		Name:      "tx_skipped_total",
		Help:      "Total number of transactions skipped during execution.",
	})
)

// Handler returns the HTTP handler that serves the registered metrics in
// the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
