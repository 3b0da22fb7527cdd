package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter_SameSeriesReturned(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("x_total", "help", `kind="a"`)
	b := r.Counter("x_total", "help", `kind="a"`)
	c := r.Counter("x_total", "help", `kind="b"`)
	if a != b {
		t.Error("same name and labels should return the same counter")
	}
	if a == c {
		t.Error("different labels should return different counters")
	}
	a.Inc()
	a.Add(4)
	if a.Value() != 5 {
		t.Errorf("value = %d", a.Value())
	}
}

func TestHistogram_Buckets(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("lat_seconds", "latency", "", []float64{1, 0.5})
	h.Observe(0.25)
	h.Observe(0.5)
	h.Observe(3)

	if h.Count() != 3 {
		t.Errorf("count = %d", h.Count())
	}
	var sb strings.Builder
	if _, err := r.WriteTo(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{
		`lat_seconds_bucket{le="0.5"} 2`,
		`lat_seconds_bucket{le="1"} 2`,
		`lat_seconds_bucket{le="+Inf"} 3`,
		"lat_seconds_count 3",
		"lat_seconds_sum 3.75",
		"# TYPE lat_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistogram_ObserveSince(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("d_seconds", "d", "", []float64{60})
	h.ObserveSince(time.Now().Add(-time.Second))
	if h.Count() != 1 {
		t.Errorf("count = %d", h.Count())
	}
}

func TestWriteTo_CountersSortedWithLabels(t *testing.T) {
	r := NewRegistry()
	r.Counter("b_total", "bees", "").Add(2)
	r.Counter("a_total", "ays", `kind="x"`).Inc()
	r.Counter("a_total", "ays", `kind="y"`).Add(3)

	var sb strings.Builder
	r.WriteTo(&sb)
	out := sb.String()

	if strings.Count(out, "# TYPE a_total counter") != 1 {
		t.Errorf("HELP/TYPE should be written once per name:\n%s", out)
	}
	ia := strings.Index(out, `a_total{kind="x"} 1`)
	iy := strings.Index(out, `a_total{kind="y"} 3`)
	ib := strings.Index(out, "b_total 2")
	if ia < 0 || iy < 0 || ib < 0 {
		t.Fatalf("missing series:\n%s", out)
	}
	if !(ia < iy && iy < ib) {
		t.Errorf("series not sorted:\n%s", out)
	}
	if !strings.Contains(out, "kbbot_uptime_seconds") {
		t.Error("uptime gauge missing")
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.Counter("hits_total", "hits", "").Inc()

	rr := httptest.NewRecorder()
	r.Handler()(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "hits_total 1") {
		t.Errorf("body = %s", rr.Body.String())
	}
}
