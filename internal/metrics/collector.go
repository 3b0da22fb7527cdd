// Package metrics is a small Prometheus-text metrics registry for kbbot.
// It avoids pulling in prometheus/client_golang for a handful of series.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the process-wide registry the pre-defined metrics live in.
var Default = NewRegistry()

// Registry holds counters and histograms keyed by name and label set.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	histograms map[string]*Histogram
	start      time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
		start:      time.Now(),
	}
}

// Counter is a monotonically increasing value.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	labels  string
	bounds  []float64
	mu      sync.Mutex
	counts  []int64
	count   int64
	sum     float64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func seriesKey(name, labels string) string {
	return name + "{" + labels + "}"
}

// Counter returns the counter for name and labels, creating it on first use.
func (r *Registry) Counter(name, help, labels string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seriesKey(name, labels)
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key] = c
	return c
}

// Histogram returns the histogram for name and labels, creating it on first
// use. A +Inf bucket is always present.
func (r *Registry) Histogram(name, help, labels string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seriesKey(name, labels)
	if h, ok := r.histograms[key]; ok {
		return h
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	if len(bounds) == 0 || !math.IsInf(bounds[len(bounds)-1], 1) {
		bounds = append(bounds, math.Inf(1))
	}
	h := &Histogram{name: name, help: help, labels: labels, bounds: bounds, counts: make([]int64, len(bounds))}
	r.histograms[key] = h
	return h
}

// WriteTo renders every series in Prometheus text exposition format, sorted by name.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	fmt.Fprintf(cw, "# HELP kbbot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(cw, "# TYPE kbbot_uptime_seconds gauge\n")
	fmt.Fprintf(cw, "kbbot_uptime_seconds %d\n", int64(time.Since(r.start).Seconds()))

	r.mu.Lock()
	counters := make([]*Counter, 0, len(r.counters))
	for _, c := range r.counters {
		counters = append(counters, c)
	}
	histograms := make([]*Histogram, 0, len(r.histograms))
	for _, h := range r.histograms {
		histograms = append(histograms, h)
	}
	r.mu.Unlock()

	sort.Slice(counters, func(i, j int) bool {
		return seriesKey(counters[i].name, counters[i].labels) < seriesKey(counters[j].name, counters[j].labels)
	})
	sort.Slice(histograms, func(i, j int) bool {
		return seriesKey(histograms[i].name, histograms[i].labels) < seriesKey(histograms[j].name, histograms[j].labels)
	})

	lastName := ""
	for _, c := range counters {
		if c.name != lastName {
			fmt.Fprintf(cw, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
			lastName = c.name
		}
		fmt.Fprintf(cw, "%s %d\n", series(c.name, c.labels, ""), c.Value())
	}

	for _, h := range histograms {
		h.mu.Lock()
		fmt.Fprintf(cw, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
		for i, le := range h.bounds {
			bound := "+Inf"
			if !math.IsInf(le, 1) {
				bound = fmt.Sprintf("%g", le)
			}
			fmt.Fprintf(cw, "%s %d\n", series(h.name+"_bucket", h.labels, `le="`+bound+`"`), h.counts[i])
		}
		fmt.Fprintf(cw, "%s %d\n", series(h.name+"_count", h.labels, ""), h.count)
		fmt.Fprintf(cw, "%s %g\n", series(h.name+"_sum", h.labels, ""), h.sum)
		h.mu.Unlock()
	}

	return cw.n, cw.err
}

func series(name, labels, extra string) string {
	switch {
	case labels == "" && extra == "":
		return name
	case labels == "":
		return name + "{" + extra + "}"
	case extra == "":
		return name + "{" + labels + "}"
	default:
		return name + "{" + labels + "," + extra + "}"
	}
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

// Handler serves the registry over HTTP.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteTo(w)
	}
}

// Series used across kbbot.
var (
	EventsTotal            = Default.Counter("kbbot_events_total", "Slack event callbacks received", "")
	IgnoredEventsTotal     = Default.Counter("kbbot_ignored_events_total", "Events dropped without a reply", "")
	UnhandledEventsTotal   = Default.Counter("kbbot_unhandled_events_total", "Events with no registered listener", "")
	DirectMessagesTotal    = Default.Counter("kbbot_direct_messages_total", "Direct messages handed to the answer lookup", "")
	RepliesTotal           = Default.Counter("kbbot_replies_total", "Replies posted to Slack", "")
	ListenerErrorsTotal    = Default.Counter("kbbot_listener_errors_total", "Listener invocations that returned an error", "")
	SignatureFailuresTotal = Default.Counter("kbbot_signature_failures_total", "Requests rejected by signature verification", "")
	LookupErrorsTotal      = Default.Counter("kbbot_lookup_errors_total", "Answer lookups that failed", "")

	LookupLatency = Default.Histogram("kbbot_lookup_latency_seconds", "Answer lookup latency in seconds", "",
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
)
