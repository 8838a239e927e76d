package httpclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Collector)(nil)

// Collector exports a Client's rate limiter and circuit breaker state as
// Prometheus gauges. Request metrics go through OpenTelemetry instead.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(httpclient.NewCollector(client))
//	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
type Collector struct {
	client *Client

	tokens *prometheus.Desc
	limit  *prometheus.Desc
	burst  *prometheus.Desc
	state  *prometheus.Desc
}

// NewCollector creates a Collector labelled with the client's service
// name.
func NewCollector(c *Client) *Collector {
	name := c.cfg.ServiceName
	if name == "" {
		name = "httpclient"
	}
	labels := prometheus.Labels{"service": name}

	return &Collector{
		client: c,
		tokens: prometheus.NewDesc("httpclient_rate_limit_tokens",
			"Tokens currently available in the client-side rate limiter.", nil, labels),
		limit: prometheus.NewDesc("httpclient_rate_limit_requests_per_second",
			"Sustained rate allowed by the client-side rate limiter.", nil, labels),
		burst: prometheus.NewDesc("httpclient_rate_limit_burst",
			"Burst size of the client-side rate limiter.", nil, labels),
		state: prometheus.NewDesc("httpclient_circuit_breaker_state",
			"Circuit breaker state: 0 closed, 1 half-open, 2 open.", nil, labels),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tokens
	ch <- c.limit
	ch <- c.burst
	ch <- c.state
}

// Collect skips the gauges of decorators the client does not use. A
// breaker whose shared store cannot be read is skipped as well.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if stats, ok := c.client.RateLimitStats(); ok {
		ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.GaugeValue, stats.TokensAvailable)
		ch <- prometheus.MustNewConstMetric(c.limit, prometheus.GaugeValue, stats.Limit)
		ch <- prometheus.MustNewConstMetric(c.burst, prometheus.GaugeValue, float64(stats.Burst))
	}

	state, err := c.client.BreakerState()
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(state))
}
