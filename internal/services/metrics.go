package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счетчики ядра. Регистрируются в собственном реестре,
// чтобы тесты могли создавать независимые экземпляры
type Metrics struct {
	Registry *prometheus.Registry

	OrdersTotal          *prometheus.CounterVec
	ReservationsReleased *prometheus.CounterVec
	PaymentDuration      *prometheus.HistogramVec
	GateBusy             prometheus.Gauge
}

// NewMetrics создает и регистрирует метрики
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_total",
				Help: "Order placement outcomes",
			},
			[]string{"result", "reason"},
		),
		ReservationsReleased: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_reservations_released_total",
				Help: "Stock reservations returned to the ledger",
			},
			[]string{"cause"},
		),
		PaymentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_duration_seconds",
				Help:    "Time spent settling payment",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		GateBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "service_gate_busy",
			Help: "1 when the service gate is Busy",
		}),
	}

	for _, c := range []prometheus.Collector{m.OrdersTotal, m.ReservationsReleased, m.PaymentDuration, m.GateBusy} {
		registry.MustRegister(c)
	}
	return m
}

// ObserveOrder учитывает исход заказа. nil-безопасно
func (m *Metrics) ObserveOrder(result string, reason RejectReason) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(result, string(reason)).Inc()
}

// ObserveRelease учитывает освобожденный резерв
func (m *Metrics) ObserveRelease(cause string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReservationsReleased.WithLabelValues(cause).Add(float64(n))
}

// ObservePayment учитывает длительность оплаты
func (m *Metrics) ObservePayment(method string, started time.Time) {
	if m == nil {
		return
	}
	m.PaymentDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

// SetGateBusy отражает состояние флага
func (m *Metrics) SetGateBusy(busy bool) {
	if m == nil {
		return
	}
	if busy {
		m.GateBusy.Set(1)
	} else {
		m.GateBusy.Set(0)
	}
}
