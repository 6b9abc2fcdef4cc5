package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"linemend/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

func readSummaryCount(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "job", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "linemend"},
		{name: "explicit job name is preserved", jobName: "nightly", gatewayURL: "http://pushgateway:9091", wantJobName: "nightly"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil || b != nil {
					t.Fatalf("NewBackend(%q, %q) = %v, %v; want nil, error", tt.jobName, tt.gatewayURL, b, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
		})
	}
}

func TestIncCounterRoutesByName(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter(metrics.StepTotal, 2, metrics.Labels{"step": "census", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"kind": "rejected"})
	b.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"status": "warning"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"kind": "rejected"})

	if got := readCounterValue(t, b.stepCounter.WithLabelValues("census", "success")); got != 2 {
		t.Fatalf("step counter = %v, want 2", got)
	}
	if got := readCounterValue(t, b.rowCounter.WithLabelValues("rejected")); got != 5 {
		t.Fatalf("row counter = %v, want 5", got)
	}
	if got := readCounterValue(t, b.fileCounter.WithLabelValues("warning")); got != 1 {
		t.Fatalf("file counter = %v, want 1", got)
	}
}

func TestZeroBackendIsSafe(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "read"})
	b.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"status": "ok"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 1, metrics.Labels{})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.ObserveHistogram(metrics.StepDurationSeconds, 1.5, metrics.Labels{"step": "correct", "status": "success"})
	b.ObserveHistogram("other_metric", 2, metrics.Labels{"step": "correct", "status": "success"})

	count, sum := readSummaryCount(t, b.stepDuration, "correct", "success")
	if count != 1 || sum != 1.5 {
		t.Fatalf("summary count=%d sum=%v; want 1/1.5", count, sum)
	}
}

func TestFlushPushesToGateway(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushed, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushed{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("linemend-job", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "read"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	select {
	case got := <-reqCh:
		if got.method != http.MethodPut {
			t.Fatalf("push method = %q, want PUT", got.method)
		}
		if got.path != "/metrics/job/linemend-job" {
			t.Fatalf("push path = %q", got.path)
		}
		if got.bodyLen == 0 {
			t.Fatalf("push body is empty")
		}
	default:
		t.Fatalf("Flush() did not reach the Pushgateway")
	}
}
