package reportjob

import (
	"sync"
)

// ControlState is what the per-project report control currently offers.
type ControlState int

const (
	// StateGenerate offers to start a generation.
	StateGenerate ControlState = iota
	// StateGenerating is disabled and shows a spinner.
	StateGenerating
	// StateView opens the report viewer.
	StateView
	// StateRetry offers to start the generation again after a failure.
	StateRetry
)

func (s ControlState) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateView:
		return "view"
	case StateRetry:
		return "retry"
	default:
		return "generate"
	}
}

// Enabled reports whether the control accepts a click.
func (s ControlState) Enabled() bool { return s != StateGenerating }

// Row is the view-model of one project's report control.
type Row struct {
	Job    JobID
	State  ControlState
	Report *Artifact
	Err    string
}

// Board is the typed view-model behind the project tables and dropdowns.
// Views subscribe to it; they never query it back to decide what to do.
type Board struct {
	mu        sync.Mutex
	rows      map[JobID]*Row
	order     []JobID
	listeners []func(Row)
}

func NewBoard() *Board {
	return &Board{rows: make(map[JobID]*Row)}
}

// Subscribe registers fn to receive every row change.
func (b *Board) Subscribe(fn func(Row)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Load adds a project known from the listing. Existing rows are left alone.
func (b *Board) Load(job JobID, report *Artifact) {
	state := StateGenerate
	if report != nil {
		state = StateView
	}
	b.mu.Lock()
	if _, ok := b.rows[job]; ok {
		b.mu.Unlock()
		return
	}
	r := &Row{Job: job, State: state, Report: report}
	b.rows[job] = r
	b.order = append(b.order, job)
	snapshot, listeners := *r, b.snapshotListeners()
	b.mu.Unlock()

	notify(listeners, snapshot)
}

// SetGenerating disables the control and shows the spinner.
func (b *Board) SetGenerating(job JobID) {
	b.apply(job, func(r *Row) bool {
		if r.State == StateGenerating {
			return false
		}
		r.State = StateGenerating
		r.Err = ""
		return true
	})
}

// SetView swaps the control to the report viewer.
func (b *Board) SetView(job JobID, report Artifact) {
	b.apply(job, func(r *Row) bool {
		if r.State == StateView && r.Report != nil && *r.Report == report {
			return false
		}
		a := report
		r.State = StateView
		r.Report = &a
		r.Err = ""
		return true
	})
}

// SetRetry re-enables the control as a retry action after a failure.
func (b *Board) SetRetry(job JobID, reason string) {
	b.apply(job, func(r *Row) bool {
		if r.State == StateRetry && r.Err == reason {
			return false
		}
		r.State = StateRetry
		r.Err = reason
		return true
	})
}

// Row returns a copy of the row for job.
func (b *Board) Row(job JobID) (Row, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rows[job]
	if !ok {
		return Row{}, false
	}
	return *r, true
}

// Rows returns copies of all rows in load order.
func (b *Board) Rows() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Row, 0, len(b.order))
	for _, job := range b.order {
		out = append(out, *b.rows[job])
	}
	return out
}

// apply mutates the row for job, creating it for jobs the listing did not
// contain (another user's project seen by an admin poll, for instance).
// Listeners run only when mutate reports a change.
func (b *Board) apply(job JobID, mutate func(r *Row) bool) {
	b.mu.Lock()
	r, ok := b.rows[job]
	if !ok {
		r = &Row{Job: job, State: StateGenerate}
		b.rows[job] = r
		b.order = append(b.order, job)
	}
	if !mutate(r) {
		b.mu.Unlock()
		return
	}
	snapshot, listeners := *r, b.snapshotListeners()
	b.mu.Unlock()

	notify(listeners, snapshot)
}

func (b *Board) snapshotListeners() []func(Row) {
	return append(([]func(Row))(nil), b.listeners...)
}

func notify(listeners []func(Row), r Row) {
	for _, fn := range listeners {
		fn(r)
	}
}
