package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "gridbot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

// Prometheus wires every Metrics field to a registered collector and
// exposes a handler for the scrape endpoint.
type Prometheus struct {
	Metrics  *Metrics
	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: promNamespace, Name: name, Help: help})
		registry.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: promNamespace, Name: name, Help: help})
		registry.MustRegister(g)
		return g
	}

	m := &Metrics{
		OrdersPlaced:        promCounter{counter("orders_placed_total", "Total number of orders placed.")},
		OrdersFilled:        promCounter{counter("orders_filled_total", "Total number of orders filled.")},
		OrdersCancelled:     promCounter{counter("orders_cancelled_total", "Total number of orders cancelled.")},
		OrdersFailed:        promCounter{counter("orders_failed_total", "Total number of order placement failures.")},
		FeeFilterBlocked:    promCounter{counter("fee_filter_blocked_total", "Total number of trades blocked by the fee filter.")},
		RiskHalts:           promCounter{counter("risk_halts_total", "Total number of risk-controller halts.")},
		MEVBundleFailures:   promCounter{counter("mev_bundle_failures_total", "Total number of failed bundle submissions.")},
		RPCEndpointFailures: promCounter{counter("rpc_endpoint_failures_total", "Total number of RPC endpoint failures.")},
		GridRebalances:      promCounter{counter("grid_rebalances_total", "Total number of grid rebalance events.")},
		OpenOrders:          promGauge{gauge("open_orders", "Current number of open grid orders.")},
		RealizedPnL:         promGauge{gauge("realized_pnl", "Cumulative realized PnL in quote units.")},
		Drawdown:            promGauge{gauge("drawdown_percent", "Current drawdown from session peak equity, percent.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
