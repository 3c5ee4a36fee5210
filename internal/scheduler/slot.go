package scheduler

import (
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/equipment"
)

// progress tracks one live run. A slot has a job iff it has progress; the two
// never drift apart because they live in the same struct.
type progress struct {
	JobID     string
	OpID      string
	Ratio     float64
	StartedAt time.Duration
	Estimate  time.Duration
}

// slot binds one machine to at most one running job.
type slot struct {
	Machine *equipment.Instance
	Run     *progress
}

func (s *slot) Idle() bool { return s.Run == nil }

func (s *slot) assign(job *Job, opID string, ratio float64, now time.Duration, runtime time.Duration) {
	s.Run = &progress{
		JobID:     job.ID,
		OpID:      opID,
		Ratio:     ratio,
		StartedAt: now,
		Estimate:  now + runtime,
	}
	s.Machine.Occupy()
	job.State = StateInProgress
	job.MachineID = s.Machine.ID
}

// clear empties the slot without touching the machine status.
func (s *slot) clear() {
	s.Run = nil
}

// percent is how far along the current run is at the given clock.
func (s *slot) percent(clock time.Duration) float64 {
	if s.Run == nil {
		return 0
	}
	total := s.Run.Estimate - s.Run.StartedAt
	if total <= 0 {
		return 1
	}
	done := float64(clock-s.Run.StartedAt) / float64(total)
	if done < 0 {
		return 0
	}
	if done > 1 {
		return 1
	}
	return done
}
