package metrics

import "sync/atomic"

// Reporter receives every metric update. Implementations must not block:
// Report is called inline on the hot path of the recorder.
type Reporter interface {
	Report(r Record)
}

var _reporters atomic.Pointer[[]Reporter]

func reporters() []Reporter {
	if p := _reporters.Load(); p != nil {
		return *p
	}
	return nil
}

func report(r Record) {
	for _, reporter := range reporters() {
		reporter.Report(r)
	}
}

// GetMetricsReporters returns a copy of the reporter list.
func GetMetricsReporters() []Reporter {
	return append([]Reporter(nil), reporters()...)
}

// SetMetricsReporters replaces the reporter list.
func SetMetricsReporters(rs []Reporter) {
	cp := make([]Reporter, len(rs))
	copy(cp, rs)
	_reporters.Store(&cp)
}

// AddReporter appends r to the reporter list.
func AddReporter(r Reporter) {
	for {
		old := _reporters.Load()
		var next []Reporter
		if old != nil {
			next = append(next, *old...)
		}
		next = append(next, r)
		if _reporters.CompareAndSwap(old, &next) {
			return
		}
	}
}

// RemoveReporter removes r from the reporter list if present.
func RemoveReporter(r Reporter) {
	for {
		old := _reporters.Load()
		if old == nil {
			return
		}
		next := make([]Reporter, 0, len(*old))
		for _, x := range *old {
			if x != r {
				next = append(next, x)
			}
		}
		if _reporters.CompareAndSwap(old, &next) {
			return
		}
	}
}
