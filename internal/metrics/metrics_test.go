package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a.Registry() == b.Registry() {
		t.Fatal("collectors share a registry")
	}
	// Both register the same names without panicking.
	a.CardsWritten.Inc()
	if got := testutil.ToFloat64(b.CardsWritten); got != 0 {
		t.Errorf("second collector saw %v cards", got)
	}
}

func TestVariantsFilled(t *testing.T) {
	m := New()
	m.VariantsFilled.WithLabelValues("TTmatch", "pass").Add(3)
	m.VariantsFilled.WithLabelValues("QCD", "fail").Inc()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "tagprobe_variants_filled_total" {
			found = true
			if len(f.GetMetric()) != 2 {
				t.Errorf("expected 2 metric series, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("tagprobe_variants_filled_total metric not found")
	}
	if got := testutil.ToFloat64(m.VariantsFilled.WithLabelValues("TTmatch", "pass")); got != 3 {
		t.Errorf("TTmatch pass = %v, want 3", got)
	}
}

func TestWriteToTextfile(t *testing.T) {
	m := New()
	m.EventsScanned.WithLabelValues("QCD").Add(1200)
	m.FillDuration.WithLabelValues("QCD").Observe(2.5)

	if err := m.WriteToTextfile(""); err != nil {
		t.Fatalf("empty path: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tagprobe.prom")
	if err := m.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		`tagprobe_events_scanned_total{process="QCD"} 1200`,
		`tagprobe_process_fill_duration_seconds_count{process="QCD"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}
