package services

import (
	"anon-social-backend/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	friendGraphOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_graph_operations_total",
			Help: "Friend graph mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	revealsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disclosure_reveals_total",
			Help: "Identity reveals by outcome",
		},
		[]string{"outcome"},
	)

	snapFanouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snap_fanouts_total",
			Help: "Snap broadcasts by outcome",
		},
		[]string{"outcome"},
	)

	snapDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snap_deliveries_total",
			Help: "Per-recipient snap deliveries by outcome",
		},
		[]string{"outcome"},
	)

	snapAudience = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snap_audience_size",
			Help:    "Number of recipients selected per snap",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	wsOnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_online_users",
			Help: "Users with an open WebSocket connection",
		},
	)
)

// RegisterMetrics registers the engine collectors
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(friendGraphOps, revealsTotal, snapFanouts, snapDeliveries, snapAudience, wsOnlineUsers)
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := models.Kind(err); kind != nil {
		return kind.Error()
	}
	return "error"
}
