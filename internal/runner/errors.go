package runner

import (
	"errors"
	"fmt"
)

var (
	ErrNoJob         = errors.New("no job state found")
	ErrNotResumable  = errors.New("job is not resumable")
	ErrUnitMismatch  = errors.New("work units do not match job state")
	ErrAlreadyActive = errors.New("a run is already active")
)

// JobError reports the unit that stopped a run and how far the job got.
type JobError struct {
	UnitIndex int
	Completed int
	Failed    int
	Total     int
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("unit %d failed (%d/%d completed, %d failed): %v", e.UnitIndex, e.Completed, e.Total, e.Failed, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
