package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NordCoder/Gatekeeper/internal/domain/autherr"
)

var (
	loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_total",
		Help: "Login attempts by outcome kind.",
	}, []string{"result"})
	lockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Accounts locked after repeated failures.",
	})
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refresh_total",
		Help: "Refresh-token rotations by outcome kind.",
	}, []string{"result"})
	pipelineRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_pipeline_rejections_total",
		Help: "Protected requests rejected by the authentication pipeline.",
	}, []string{"kind"})
	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_operation_duration_seconds",
		Help:    "Duration of auth operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	k, _ := autherr.Public(err)
	return string(k)
}
