package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewMetricsCollector()
	ctr := c.Counter("test_total", "a test counter")
	ctr.Inc()
	ctr.Add(2)
	if ctr.Value() != 3 {
		t.Fatalf("value = %d", ctr.Value())
	}
	if c.Counter("test_total", "a test counter") != ctr {
		t.Fatal("second lookup returned a different counter")
	}
}

func TestGauge(t *testing.T) {
	c := NewMetricsCollector()
	g := c.Gauge("test_depth", "a test gauge")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 4 {
		t.Fatalf("value = %d", g.Value())
	}
}

func TestHistogramBucketsAreCumulative(t *testing.T) {
	c := NewMetricsCollector()
	h := c.Histogram("test_latency", "a test histogram", []float64{0.5, 1})
	h.Observe(0.3)
	h.Observe(2)

	if h.count != 2 {
		t.Fatalf("count = %d", h.count)
	}
	if h.buckets[0].count != 1 || h.buckets[1].count != 1 {
		t.Fatalf("buckets = %+v", h.buckets)
	}
}

func TestHandlerRendersPrometheusText(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("render_total", "rendered things").Add(7)
	c.Gauge("render_depth", "depth").Set(2)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE render_total counter",
		"render_total 7",
		"# TYPE render_depth gauge",
		"render_depth 2",
		"chatty_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("output missing %q:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
}
