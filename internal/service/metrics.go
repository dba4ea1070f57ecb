package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts engine-level outcomes. A nil *Metrics records nothing.
type Metrics struct {
	PositionReports  *prometheus.CounterVec
	PriceFetches     *prometheus.CounterVec
	Simulations      *prometheus.CounterVec
	PositionsFetched prometheus.Gauge
}

// NewMetrics creates the service metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		PositionReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deltahedge_position_reports_total",
				Help: "Position reports produced, by result",
			},
			[]string{"result"},
		),
		PriceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deltahedge_price_fetches_total",
				Help: "Current price lookups, by pair and result",
			},
			[]string{"pair", "result"},
		),
		Simulations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deltahedge_simulations_total",
				Help: "Simulation requests, by result",
			},
			[]string{"result"},
		),
		PositionsFetched: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "deltahedge_live_positions",
				Help: "Open positions returned by the last live fetch",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.PositionReports, m.PriceFetches, m.Simulations, m.PositionsFetched} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) reports(ok, failed int) {
	if m == nil {
		return
	}
	m.PositionReports.WithLabelValues("ok").Add(float64(ok))
	m.PositionReports.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) priceFetch(pair string, err error) {
	if m == nil {
		return
	}
	m.PriceFetches.WithLabelValues(pair, outcome(err)).Inc()
}

func (m *Metrics) simulation(result string) {
	if m == nil {
		return
	}
	m.Simulations.WithLabelValues(result).Inc()
}

func (m *Metrics) livePositions(n int) {
	if m == nil {
		return
	}
	m.PositionsFetched.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
