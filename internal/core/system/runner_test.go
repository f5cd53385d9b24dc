package system

import (
	"testing"
	"time"
)

type recordingSystem struct {
	name  string
	phase Phase
	log   *[]string
}

func (s recordingSystem) Phase() Phase { return s.phase }

func (s recordingSystem) Update(time.Duration) { *s.log = append(*s.log, s.name) }

func TestRunnerOrdersByPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recordingSystem{"output", PhaseOutput, &log})
	r.Register(recordingSystem{"input", PhaseInput, &log})
	r.Register(recordingSystem{"sweep-a", PhasePostUpdate, &log})
	r.Register(recordingSystem{"sweep-b", PhasePostUpdate, &log})
	r.Register(recordingSystem{"combat", PhaseUpdate, &log})

	r.Tick(time.Millisecond)
	want := []string{"input", "combat", "sweep-a", "sweep-b", "output"}
	if len(log) != len(want) {
		t.Fatalf("ran %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("ran %v, want %v", log, want)
		}
	}
}

func TestRunnerTickPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recordingSystem{"input", PhaseInput, &log})
	r.Register(recordingSystem{"output", PhaseOutput, &log})

	r.TickPhase(PhaseInput, time.Millisecond)
	if len(log) != 1 || log[0] != "input" {
		t.Fatalf("ran %v", log)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d", r.Len())
	}
}
