package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "wellness"

// CreditMetrics exposes counters/histograms for the credit ledger.
type CreditMetrics struct {
	grantedTotal      *prometheus.CounterVec
	grantedAmount     *prometheus.CounterVec
	usedTotal         prometheus.Counter
	usedAmount        prometheus.Counter
	expiredTotal      prometheus.Counter
	insufficientTotal prometheus.Counter
	ledgerLatency     *prometheus.HistogramVec
}

func NewCreditMetrics(reg prometheus.Registerer) *CreditMetrics {
	m := &CreditMetrics{
		grantedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "granted_total",
			Help:      "Total credits granted",
		}, []string{"category"}),
		grantedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "granted_amount_total",
			Help:      "Sum of granted credit amounts",
		}, []string{"category"}),
		usedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "used_total",
			Help:      "Total successful credit redemptions",
		}),
		usedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "used_amount_total",
			Help:      "Sum of redeemed credit amounts",
		}),
		expiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "expired_total",
			Help:      "Total credits expired by the sweep",
		}),
		insufficientTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "insufficient_total",
			Help:      "Redemptions rejected for insufficient balance",
		}),
		ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "ledger_latency_seconds",
			Help:      "Latency of ledger operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.grantedTotal, m.grantedAmount, m.usedTotal, m.usedAmount, m.expiredTotal, m.insufficientTotal, m.ledgerLatency)
	return m
}

func (m *CreditMetrics) ObserveGranted(category string, amount float64) {
	if m == nil {
		return
	}
	m.grantedTotal.WithLabelValues(category).Inc()
	m.grantedAmount.WithLabelValues(category).Add(amount)
}

func (m *CreditMetrics) ObserveUsed(amount float64) {
	if m == nil {
		return
	}
	m.usedTotal.Inc()
	m.usedAmount.Add(amount)
}

func (m *CreditMetrics) ObserveExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.expiredTotal.Add(float64(count))
}

func (m *CreditMetrics) ObserveInsufficient() {
	if m == nil {
		return
	}
	m.insufficientTotal.Inc()
}

func (m *CreditMetrics) ObserveLatency(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ledgerLatency.WithLabelValues(operation, status).Observe(seconds)
}

// AvailabilityMetrics tracks conflict checks and the interval cache.
type AvailabilityMetrics struct {
	checksTotal *prometheus.CounterVec
	cacheTotal  *prometheus.CounterVec
}

func NewAvailabilityMetrics(reg prometheus.Registerer) *AvailabilityMetrics {
	m := &AvailabilityMetrics{
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "checks_total",
			Help:      "Availability checks by outcome",
		}, []string{"result"}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "cache_lookups_total",
			Help:      "Interval cache lookups by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.checksTotal, m.cacheTotal)
	return m
}

func (m *AvailabilityMetrics) ObserveCheck(available bool) {
	if m == nil {
		return
	}
	result := "conflict"
	if available {
		result = "available"
	}
	m.checksTotal.WithLabelValues(result).Inc()
}

// ObserveCache records "hit", "miss", "stale" or "error".
func (m *AvailabilityMetrics) ObserveCache(outcome string) {
	if m == nil {
		return
	}
	m.cacheTotal.WithLabelValues(outcome).Inc()
}

// BookingMetrics counts appointment lifecycle outcomes.
type BookingMetrics struct {
	outcomesTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "outcomes_total",
			Help:      "Appointment operations by action and status",
		}, []string{"action", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomesTotal)
	return m
}

func (m *BookingMetrics) Observe(action, status string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(action, status).Inc()
}
