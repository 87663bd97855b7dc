package observability

import (
	"strings"
	"testing"
)

func TestRenderPrometheus(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("realtime_events_published_total", map[string]string{"bus_backend": "memory", "kind": "new_message"}, 3)
	r.SetGauge("realtime_connections", map[string]string{"bus_backend": "memory"}, 2)

	out := r.RenderPrometheus()
	if !strings.Contains(out, `realtime_events_published_total{bus_backend="memory",kind="new_message"} 3`) {
		t.Fatalf("missing published counter in output: %s", out)
	}
	if !strings.Contains(out, `realtime_connections{bus_backend="memory"} 2`) {
		t.Fatalf("missing connections gauge in output: %s", out)
	}
}
