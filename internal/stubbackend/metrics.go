package stubbackend

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the stub's collectors on a private registry so several
// servers can run in one process.
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	jobs     prometheus.Counter
	streamed prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reportsmith",
			Subsystem: "stub",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		jobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reportsmith",
			Subsystem: "stub",
			Name:      "jobs_started_total",
			Help:      "Report generation jobs started.",
		}),
		streamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reportsmith",
			Subsystem: "stub",
			Name:      "chat_chunks_total",
			Help:      "Chat reply chunks flushed to clients.",
		}),
	}
	m.registry.MustRegister(m.requests, m.jobs, m.streamed)
	return m
}

func (m *metrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		code := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		} else if err != nil && !c.Response().Committed {
			code = http.StatusInternalServerError
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
		return err
	}
}

func (m *metrics) handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
