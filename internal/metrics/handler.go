package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the live metrics endpoint.
type Summary struct {
	Console  httpSummary  `json:"console"`
	Backend  httpSummary  `json:"backend"`
	Store    storeInfo    `json:"store"`
	Sessions sessionInfo  `json:"sessions"`
	Server   serverInfo   `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
}

type storeInfo struct {
	CachedAgents      float64 `json:"cachedAgents"`
	CachedPayments    float64 `json:"cachedPayments"`
	CachedBatchJobs   float64 `json:"cachedBatchJobs"`
	StaleScopeDrops   float64 `json:"staleScopeDrops"`
	EncodingFallbacks float64 `json:"encodingFallbacks"`
}

type sessionInfo struct {
	Logins        float64 `json:"logins"`
	ForcedLogouts float64 `json:"forcedLogouts"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Handler returns an http.HandlerFunc serving the live summary as JSON.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleLive(w)
	}
}

func (m *Metrics) handleLive(w http.ResponseWriter) {
	families, err := m.registry.Gather()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	summary := Summary{
		Console: httpSummary{
			TotalRequests: sumCounter(fam["voxdeck_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["voxdeck_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["voxdeck_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["voxdeck_http_request_duration_seconds"], 0.95),
		},
		Backend: httpSummary{
			TotalRequests: sumCounter(fam["voxdeck_backend_requests_total"]),
			ErrorRate:     computeErrorRate(fam["voxdeck_backend_requests_total"]),
			P50Latency:    histogramPercentile(fam["voxdeck_backend_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["voxdeck_backend_request_duration_seconds"], 0.95),
		},
		Store: storeInfo{
			CachedAgents:      gaugeValue(fam["voxdeck_cached_agents"]),
			CachedPayments:    gaugeValue(fam["voxdeck_cached_payments"]),
			CachedBatchJobs:   gaugeValue(fam["voxdeck_cached_batch_jobs"]),
			StaleScopeDrops:   counterValue(fam["voxdeck_stale_scope_drops_total"]),
			EncodingFallbacks: sumCounter(fam["voxdeck_encoding_fallbacks_total"]),
		},
		Sessions: sessionInfo{
			Logins:        counterWithLabel(fam["voxdeck_session_events_total"], "event", "login"),
			ForcedLogouts: counterWithLabel(fam["voxdeck_session_events_total"], "event", "forced_logout"),
		},
		Server: serverInfo{
			StartTime:     gaugeValue(fam["voxdeck_server_start_time_seconds"]),
			UptimeSeconds: float64(time.Now().Unix()) - gaugeValue(fam["voxdeck_server_start_time_seconds"]),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram
// buckets using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
