package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the portal service.
type Metrics struct {
	ProbesClassified   *prometheus.CounterVec
	ProbeRedirects     prometheus.Counter
	RequestsRejected   *prometheus.CounterVec
	IPBansTotal        prometheus.Counter
	EntitiesBlocked    *prometheus.CounterVec
	SignupsTotal       prometheus.Counter
	LoginsTotal        prometheus.Counter
	AuthFailures       prometheus.Counter
	RewardsIssued      *prometheus.CounterVec
	VouchersRedeemed   prometheus.Counter
	ControllerFailures prometheus.Counter
	EndpointLatency    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ProbesClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guestgate_probes_classified_total",
			Help: "Captive-portal probes classified, labeled by detected OS",
		}, []string{"os"}),
		ProbeRedirects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guestgate_probe_redirects_total",
			Help: "Probes redirected to the portal entry point",
		}),
		RequestsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guestgate_requests_rejected_total",
			Help: "Requests rejected by the abuse guard, labeled by reason",
		}, []string{"reason"}),
		IPBansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guestgate_ip_bans_total",
			Help: "Temporary IP bans applied",
		}),
		EntitiesBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guestgate_entities_blocked_total",
			Help: "Entities blocked after excessive failed attempts, labeled by kind",
		}, []string{"kind"}),
		SignupsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guestgate_signups_total",
			Help: "Successful guest signups",
		}),
		LoginsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guestgate_logins_total",
			Help: "Successful guest logins",
		}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guestgate_auth_failures_total",
			Help: "Failed signup and login attempts",
		}),
		RewardsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guestgate_rewards_issued_total",
			Help: "Reward vouchers issued, labeled by trigger type",
		}, []string{"trigger"}),
		VouchersRedeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guestgate_vouchers_redeemed_total",
			Help: "Vouchers redeemed",
		}),
		ControllerFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guestgate_controller_failures_total",
			Help: "Best-effort network controller calls that failed",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guestgate_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
