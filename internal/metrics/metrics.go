package metrics

// Counter is the minimal increment-only sink every component logs
// through, so the orchestrator can swap a Noop for a Prometheus
// implementation without either caring.
type Counter interface {
	Inc()
}

// Gauge additionally supports setting an absolute value, used for
// quantities that don't monotonically increase, like open order count
// or current drawdown.
type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	OrdersPlaced        Counter
	OrdersFilled        Counter
	OrdersCancelled     Counter
	OrdersFailed        Counter
	FeeFilterBlocked    Counter
	RiskHalts           Counter
	MEVBundleFailures   Counter
	RPCEndpointFailures Counter
	GridRebalances      Counter
	OpenOrders          Gauge
	RealizedPnL         Gauge
	Drawdown            Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	c := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		OrdersPlaced:        c,
		OrdersFilled:        c,
		OrdersCancelled:     c,
		OrdersFailed:        c,
		FeeFilterBlocked:    c,
		RiskHalts:           c,
		MEVBundleFailures:   c,
		RPCEndpointFailures: c,
		GridRebalances:      c,
		OpenOrders:          g,
		RealizedPnL:         g,
		Drawdown:            g,
	}
}
