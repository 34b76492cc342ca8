// Package reqlog defines the per-request log entry and the per-day metrics
// aggregate the gateway records off the critical path.
package reqlog

import (
	"strconv"
	"time"
)

type Entry struct {
	RequestID  string    `json:"requestId"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMS float64   `json:"durationMs"`
	UserID     string    `json:"userId,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e Entry) Success() bool { return e.Status < 400 }

type EndpointStats struct {
	Count         int64   `json:"count"`
	MeanLatencyMS float64 `json:"meanLatencyMs"`
	Errors        int64   `json:"errors"`
}

// Aggregate is one day's running statistics. Updated read-modify-write with
// no compare-and-swap; concurrent writers can lose increments. Dashboards
// only, never a correctness-critical counter.
type Aggregate struct {
	Date          string                    `json:"date"`
	Total         int64                     `json:"total"`
	Success       int64                     `json:"success"`
	Failure       int64                     `json:"failure"`
	MeanLatencyMS float64                   `json:"meanLatencyMs"`
	Endpoints     map[string]*EndpointStats `json:"endpoints"`
	StatusCodes   map[string]int64          `json:"statusCodes"`
	UserAgents    map[string]int64          `json:"userAgents"`
}

func NewAggregate(date string) *Aggregate {
	return &Aggregate{
		Date:        date,
		Endpoints:   map[string]*EndpointStats{},
		StatusCodes: map[string]int64{},
		UserAgents:  map[string]int64{},
	}
}

// Observe folds one request into the aggregate with incremental means.
func (a *Aggregate) Observe(e Entry, uaBucket string) {
	a.Total++
	if e.Success() {
		a.Success++
	} else {
		a.Failure++
	}
	a.MeanLatencyMS += (e.DurationMS - a.MeanLatencyMS) / float64(a.Total)

	key := e.Method + " " + e.Path
	ep := a.Endpoints[key]
	if ep == nil {
		ep = &EndpointStats{}
		a.Endpoints[key] = ep
	}
	ep.Count++
	ep.MeanLatencyMS += (e.DurationMS - ep.MeanLatencyMS) / float64(ep.Count)
	if !e.Success() {
		ep.Errors++
	}

	a.StatusCodes[strconv.Itoa(e.Status)]++
	a.UserAgents[uaBucket]++
}
