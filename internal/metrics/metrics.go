package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Logins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tinysns_logins_total",
		Help: "Total login calls",
	})
	PostsAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tinysns_posts_appended_total",
		Help: "Total posts accepted into the post store",
	})
	PostsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tinysns_posts_delivered_total",
		Help: "Total posts delivered over timeline streams",
	})
	ActiveTimelines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tinysns_active_timelines",
		Help: "Currently open timeline sessions",
	})
	CommandFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tinysns_command_failures_total",
		Help: "Command-mode calls that returned a failure status",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(Logins, PostsAppended, PostsDelivered, ActiveTimelines, CommandFailures)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
