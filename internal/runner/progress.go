package runner

import (
	"fmt"
	"io"
	"sync"
)

// LinePrinter writes one line per progress event, for terminals without the
// interactive UI.
func LinePrinter(w io.Writer) func(ProgressEvent) {
	var mu sync.Mutex
	return func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		pos := ev.UnitIndex + 1
		switch ev.Phase {
		case PhaseSkipped:
			fmt.Fprintf(w, "[%d/%d] skip  unit %d (cached)\n", pos, ev.Total, ev.UnitIndex)
		case PhaseProcessing:
			fmt.Fprintf(w, "[%d/%d] start unit %d\n", pos, ev.Total, ev.UnitIndex)
		case PhaseCompleted:
			fmt.Fprintf(w, "[%d/%d] done  unit %d  cost=$%s\n", pos, ev.Total, ev.UnitIndex, ev.ActualCost.StringFixed(4))
		case PhaseFailed:
			fmt.Fprintf(w, "[%d/%d] fail  unit %d: %v\n", pos, ev.Total, ev.UnitIndex, ev.Err)
		}
	}
}
