package model

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Touch refreshes LastUpdatedAt without ever moving it backwards.
func (s *JobState) Touch(now time.Time) {
	now = now.UTC()
	if now.After(s.LastUpdatedAt) {
		s.LastUpdatedAt = now
	}
}

func (s *JobState) IsCompleted(index int) bool {
	_, found := slices.BinarySearch(s.CompletedIndices, index)
	return found
}

// AddResult upserts a unit result by index and keeps the running totals equal
// to the sum over CachedResults.
func (s *JobState) AddResult(r UnitResult) {
	if !s.IsCompleted(r.UnitIndex) {
		pos, _ := slices.BinarySearch(s.CompletedIndices, r.UnitIndex)
		s.CompletedIndices = slices.Insert(s.CompletedIndices, pos, r.UnitIndex)
	}

	replaced := false
	for i := range s.CachedResults {
		if s.CachedResults[i].UnitIndex != r.UnitIndex {
			continue
		}
		old := s.CachedResults[i]
		s.ActualCost = s.ActualCost.Sub(old.Cost)
		s.TotalInputTokens -= old.InputTokens
		s.TotalOutputTokens -= old.OutputTokens
		s.CachedResults[i] = r
		replaced = true
		break
	}
	if !replaced {
		s.CachedResults = append(s.CachedResults, r)
	}

	s.ActualCost = s.ActualCost.Add(r.Cost)
	s.TotalInputTokens += r.InputTokens
	s.TotalOutputTokens += r.OutputTokens
	s.Touch(time.Now())
}

func (s *JobState) AddFailure(index int, msg string) {
	if s.FailedIndices == nil {
		s.FailedIndices = make(map[int]string)
	}
	s.FailedIndices[index] = msg
	s.Touch(time.Now())
}

// Remaining lists unit indices that are neither completed nor recorded as failed.
func (s *JobState) Remaining() []int {
	out := make([]int, 0, s.TotalUnits)
	for i := 0; i < s.TotalUnits; i++ {
		if s.IsCompleted(i) {
			continue
		}
		if _, failed := s.FailedIndices[i]; failed {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (s *JobState) Resumable() bool {
	if s.Status != StatusProcessing && s.Status != StatusPaused {
		return false
	}
	return len(s.CompletedIndices) < s.TotalUnits
}

func (s *JobState) Progress() float64 {
	if s.TotalUnits == 0 {
		return 0
	}
	return float64(len(s.CompletedIndices)) / float64(s.TotalUnits) * 100
}

// SortedResults returns a copy of the cached results ordered by unit index.
func (s *JobState) SortedResults() []UnitResult {
	out := slices.Clone(s.CachedResults)
	sort.Slice(out, func(i, j int) bool {
		return out[i].UnitIndex < out[j].UnitIndex
	})
	return out
}

func (s *JobState) Summary() Summary {
	return Summary{
		UnitsProcessed:    len(s.CachedResults),
		TotalInputTokens:  s.TotalInputTokens,
		TotalOutputTokens: s.TotalOutputTokens,
		TotalCost:         s.ActualCost.Round(4),
		Model:             s.ConfigString(ConfigModel),
		FailedUnitCount:   len(s.FailedIndices),
	}
}

func (s *JobState) ConfigString(key string) string {
	v, ok := s.Config[key]
	if !ok {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// ConfigInt reads a numeric snapshot value; JSON round trips turn ints into float64.
func (s *JobState) ConfigInt(key string) int {
	switch v := s.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (s *JobState) ConfigFloat(key string) float64 {
	switch v := s.Config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Validate checks the persisted invariants. A state that fails validation is
// treated as corrupt by the store.
func (s *JobState) Validate() error {
	var errs []error
	if s.JobID == "" {
		errs = append(errs, errors.New("job_id is required"))
	}
	if !IsKnownStatus(s.Status) {
		errs = append(errs, fmt.Errorf("unknown status %q", s.Status))
	}
	if s.TotalUnits < 0 {
		errs = append(errs, fmt.Errorf("total_units must be >= 0, got %d", s.TotalUnits))
	}
	if len(s.CompletedIndices) > s.TotalUnits {
		errs = append(errs, fmt.Errorf("completed %d units of %d", len(s.CompletedIndices), s.TotalUnits))
	}
	if !slices.IsSorted(s.CompletedIndices) {
		errs = append(errs, errors.New("completed_indices not sorted"))
	}

	cached := make(map[int]bool, len(s.CachedResults))
	sum := decimal.Zero
	for _, r := range s.CachedResults {
		if cached[r.UnitIndex] {
			errs = append(errs, fmt.Errorf("duplicate cached result for unit %d", r.UnitIndex))
		}
		cached[r.UnitIndex] = true
		sum = sum.Add(r.Cost)
	}
	for i, idx := range s.CompletedIndices {
		if idx < 0 || idx >= s.TotalUnits {
			errs = append(errs, fmt.Errorf("completed unit %d out of range [0,%d)", idx, s.TotalUnits))
		}
		if i > 0 && s.CompletedIndices[i-1] == idx {
			errs = append(errs, fmt.Errorf("completed unit %d listed twice", idx))
		}
		if !cached[idx] {
			errs = append(errs, fmt.Errorf("completed unit %d has no cached result", idx))
		}
	}
	if !sum.Equal(s.ActualCost) {
		errs = append(errs, fmt.Errorf("actual_cost %s does not match cached results %s", s.ActualCost, sum))
	}
	return errors.Join(errs...)
}
