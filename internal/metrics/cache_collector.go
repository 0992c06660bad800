package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheStatFunc returns current store cache sizes without importing the
// console package.
type CacheStatFunc func() (agents, payments, jobs int)

// cacheCollector implements prometheus.Collector for store cache gauges.
type cacheCollector struct {
	statFunc CacheStatFunc

	agentsDesc   *prometheus.Desc
	paymentsDesc *prometheus.Desc
	jobsDesc     *prometheus.Desc
}

// NewCacheCollector creates a collector that exposes cached entity counts.
func NewCacheCollector(statFunc CacheStatFunc) prometheus.Collector {
	return &cacheCollector{
		statFunc: statFunc,
		agentsDesc: prometheus.NewDesc(
			"voxdeck_cached_agents",
			"Number of agents in the current scope's cache.",
			nil, nil,
		),
		paymentsDesc: prometheus.NewDesc(
			"voxdeck_cached_payments",
			"Number of payment rows cached by the billing store.",
			nil, nil,
		),
		jobsDesc: prometheus.NewDesc(
			"voxdeck_cached_batch_jobs",
			"Number of batch calling jobs mirrored from the backend.",
			nil, nil,
		),
	}
}

// Describe sends the descriptors of each metric to the channel.
func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.agentsDesc
	ch <- c.paymentsDesc
	ch <- c.jobsDesc
}

// Collect fetches cache sizes and sends them as gauges.
func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	agents, payments, jobs := c.statFunc()
	ch <- prometheus.MustNewConstMetric(c.agentsDesc, prometheus.GaugeValue, float64(agents))
	ch <- prometheus.MustNewConstMetric(c.paymentsDesc, prometheus.GaugeValue, float64(payments))
	ch <- prometheus.MustNewConstMetric(c.jobsDesc, prometheus.GaugeValue, float64(jobs))
}
