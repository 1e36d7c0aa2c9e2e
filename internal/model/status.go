package model

import "fmt"

const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
	StatusPaused     = "paused"
	StatusCompleted  = "completed"
	StatusCrashed    = "crashed"
)

var allowedTransitions = map[string]map[string]bool{
	StatusIdle: {
		StatusIdle:       true,
		StatusProcessing: true,
	},
	StatusProcessing: {
		StatusProcessing: true,
		StatusPaused:     true,
		StatusCompleted:  true,
		StatusCrashed:    true,
	},
	StatusPaused: {
		StatusPaused:     true,
		StatusProcessing: true,
	},
	StatusCompleted: {
		StatusCompleted: true,
	},
	StatusCrashed: {
		StatusCrashed: true,
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Transition moves the job to toStatus, rejecting edges outside the lifecycle
// idle -> processing -> {completed|paused|crashed}, paused -> processing.
func (s *JobState) Transition(toStatus string) error {
	from := s.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s)", from, toStatus, s.JobID)
	}
	s.Status = toStatus
	return nil
}

// Recover is the manual intervention that makes a crashed job resumable again.
// Completed units are kept; the failed unit is retried on the next run.
func (s *JobState) Recover() error {
	if s.Status != StatusCrashed {
		return fmt.Errorf("job %s is %s, only crashed jobs can be recovered", s.JobID, s.Status)
	}
	s.Status = StatusPaused
	return nil
}
