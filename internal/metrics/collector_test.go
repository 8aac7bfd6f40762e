package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	c := NewMetricsCollector()

	ctr := c.Counter("test_total", "A test counter", "")
	ctr.Inc()
	ctr.Add(2)
	if ctr.Value() != 3 {
		t.Fatalf("counter = %d", ctr.Value())
	}
	if c.Counter("test_total", "A test counter", "") != ctr {
		t.Fatal("same name and labels must return the same counter")
	}

	g := c.Gauge("test_gauge", "A test gauge", "")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("gauge = %d", g.Value())
	}
	g.Set(7)
	if g.Value() != 7 {
		t.Fatalf("gauge = %d", g.Value())
	}
}

func TestHistogram_CumulativeBuckets(t *testing.T) {
	c := NewMetricsCollector()
	h := c.Histogram("latency_seconds", "Latency", "", []float64{1, 0.5})

	h.Observe(0.25)
	h.ObserveDuration(500 * time.Millisecond)
	h.Observe(4)

	if h.Count() != 3 {
		t.Fatalf("count = %d", h.Count())
	}

	out := c.Render()
	for _, want := range []string{
		"# TYPE latency_seconds histogram",
		`latency_seconds_bucket{le="0.5"} 2`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_sum 4.75",
		"latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q\n%s", want, out)
		}
	}
}

func TestRender_LabelsAndHelpOnce(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("failures_total", "Failures", `kind="timeout"`).Inc()
	c.Counter("failures_total", "Failures", `kind="too_large"`).Add(2)

	out := c.Render()
	if strings.Count(out, "# HELP failures_total") != 1 {
		t.Fatalf("HELP should be written once:\n%s", out)
	}
	if !strings.Contains(out, `failures_total{kind="timeout"} 1`) ||
		!strings.Contains(out, `failures_total{kind="too_large"} 2`) {
		t.Fatalf("labeled series missing:\n%s", out)
	}
	if strings.Index(out, `kind="timeout"`) > strings.Index(out, `kind="too_large"`) {
		t.Fatal("series should be sorted")
	}
}

func TestHandler(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("shortsbot_videos_sent_total", "Videos", "").Inc()

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "shortsbot_uptime_seconds") || !strings.Contains(body, "shortsbot_videos_sent_total 1") {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestFailures(t *testing.T) {
	before := Failures("timeout").Value()
	Failures("timeout").Inc()
	if Failures("timeout").Value() != before+1 {
		t.Fatal("Failures should return a shared counter per kind")
	}
}
