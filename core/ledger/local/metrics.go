package local

import (
	"github.com/bitpond/appkit"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promRound = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "appkit_ledger_round",
		Help: "last round produced by the ledger",
	})

	promTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appkit_ledger_transactions_total",
		Help: "total number of transactions processed by outcome",
	}, []string{"outcome"})

	promRoundTxs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appkit_ledger_transactions_round",
		Help:    "number of transactions in the last round",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 20, 30, 50, 100},
	})

	promPool = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "appkit_ledger_pool_size",
		Help: "number of transactions waiting in the pool",
	})
)

func init() {
	appkit.PromCollectors = append(appkit.PromCollectors, promRound, promTxs,
		promRoundTxs, promPool)
}
