package system

import (
	"testing"
	"time"
)

type recorder struct {
	name  string
	phase Phase
	log   *[]string
}

func (r recorder) Phase() Phase { return r.phase }
func (r recorder) Update(time.Duration) {
	*r.log = append(*r.log, r.name)
}

func TestRunnerPhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{"cleanup", PhaseCleanup, &log})
	r.Register(recorder{"render", PhaseRender, &log})
	r.Register(recorder{"stream-a", PhaseStream, &log})
	r.Register(recorder{"input", PhaseInput, &log})
	r.Register(recorder{"stream-b", PhaseStream, &log})

	r.Tick(time.Millisecond)
	want := []string{"input", "stream-a", "stream-b", "render", "cleanup"}
	if len(log) != len(want) {
		t.Fatalf("ran %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("order %v, want %v", log, want)
		}
	}

	log = log[:0]
	r.TickPhase(PhaseStream, time.Millisecond)
	if len(log) != 2 || log[0] != "stream-a" {
		t.Fatalf("TickPhase ran %v", log)
	}
}
