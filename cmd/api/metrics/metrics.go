// Package metrics registers the API's Prometheus collectors and serves the
// scrape endpoint.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UsersRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "users_registered_total",
		Help: "Number of user accounts created",
	})
	TicketsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tickets_created_total",
		Help: "Number of tickets created",
	})
	MessagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Number of chat messages sent",
	})
	NotificationsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Number of notifications created",
	})
)

func init() {
	prometheus.MustRegister(
		UsersRegisteredTotal,
		TicketsCreatedTotal,
		MessagesSentTotal,
		NotificationsCreatedTotal,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
