package domainsplit

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const (
	MetricNameSpace = "domainsplit"
)

var (
	registryGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricNameSpace,
			Name:      "registry",
			Help:      "minted tokens and created splitters",
		},
		[]string{"item"},
	)
	marketGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricNameSpace,
			Name:      "market",
			Help:      "listings and accrued fee balance (ether)",
		},
		[]string{"item"},
	)
	eventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricNameSpace,
			Name:      "events_total",
			Help:      "committed contract events",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(
		registryGauge,
		marketGauge,
		eventCounter,
	)
}

func metricRegistry(totalMinted, splitters uint64) {
	registryGauge.WithLabelValues("minted").Set(float64(totalMinted))
	registryGauge.WithLabelValues("splitters").Set(float64(splitters))
}

func metricMarket(listings uint64, feeBalance *big.Int) {
	marketGauge.WithLabelValues("listings").Set(float64(listings))
	fee, _ := weiToEth(feeBalance).Float64()
	marketGauge.WithLabelValues("fee_balance").Set(fee)
}

func metricEvent(name string) {
	eventCounter.WithLabelValues(name).Inc()
}

func weiToEth(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -18)
}
