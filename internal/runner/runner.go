// Package runner implements the discrete-event simulator: it advances
// virtual time over a fixed pool of worker slots, draining a dependency
// queue until every artifact has run.
package runner

import (
	"time"

	"golang.org/x/xerrors"

	"github.com/osiewicz/dice-box/internal/artifact"
	"github.com/osiewicz/dice-box/internal/depqueue"
	"github.com/osiewicz/dice-box/internal/timings"
)

// Task is one artifact occupying a slot, along with the virtual time (in
// milliseconds) at which it finishes.
type Task struct {
	Artifact artifact.Artifact
	EndTime  int64
}

// TraceEntry records when an artifact started running.
type TraceEntry struct {
	StartTime int64
	Artifact  artifact.Artifact
}

// Runner is the simulator. It owns the queue, the slot pool and the
// running trace for the duration of a single Calculate() call.
type Runner struct {
	queue   *depqueue.Queue
	store   *timings.Store
	slots   []*Task
	running int
	trace   []TraceEntry
	current int64
}

// New returns a Runner with numSlots worker slots, ready to drain queue.
func New(queue *depqueue.Queue, store *timings.Store, numSlots int) *Runner {
	return &Runner{
		queue: queue,
		store: store,
		slots: make([]*Task, numSlots),
	}
}

// Calculate drains the queue to completion, returning the makespan (in
// milliseconds) and the full start-time trace.
func (r *Runner) Calculate() (int64, []TraceEntry, error) {
	for !r.queue.IsEmpty() || r.running > 0 {
		if r.running > 0 {
			if err := r.advance(); err != nil {
				return 0, nil, err
			}
		}
		filled, err := r.fill()
		if err != nil {
			return 0, nil, err
		}
		if r.running == 0 && !r.queue.IsEmpty() && !filled {
			return 0, nil, xerrors.Errorf("empty ready set at t=%dms while %d artifacts remain queued and no task is running", r.current, r.queue.Len())
		}
	}
	return r.current, r.trace, nil
}

// advance jumps the current time to the earliest end time among occupied
// slots, clearing every slot that ends exactly then and notifying the
// queue. Simultaneous finishes are all processed before any refill.
func (r *Runner) advance() error {
	next := int64(-1)
	for _, t := range r.slots {
		if t == nil {
			continue
		}
		if next == -1 || t.EndTime < next {
			next = t.EndTime
		}
	}
	r.current = next

	for i, t := range r.slots {
		if t == nil || t.EndTime != next {
			continue
		}
		finished := t.Artifact
		r.slots[i] = nil
		r.running--
		if _, err := r.queue.Finish(finished); err != nil {
			return err
		}
	}
	return nil
}

// fill occupies every empty slot it can, in slot-index order, stopping
// once the queue has no ready artifact left. It reports whether it
// placed at least one task, so Calculate can detect a stuck schedule.
func (r *Runner) fill() (bool, error) {
	filled := false
	for {
		idx := r.firstEmptySlot()
		if idx == -1 {
			break
		}
		a, ok := r.queue.Dequeue()
		if !ok {
			break
		}
		d, err := r.store.Duration(a)
		if err != nil {
			return filled, err
		}
		end := r.current + roundToMillis(d)
		r.slots[idx] = &Task{Artifact: a, EndTime: end}
		r.running++
		r.trace = append(r.trace, TraceEntry{StartTime: r.current, Artifact: a})
		filled = true
	}
	return filled, nil
}

func (r *Runner) firstEmptySlot() int {
	for i, t := range r.slots {
		if t == nil {
			return i
		}
	}
	return -1
}

// roundToMillis rounds a duration to the nearest millisecond. A duration
// that rounds to zero still occupies a slot for one simulated step.
func roundToMillis(d time.Duration) int64 {
	return int64(d.Round(time.Millisecond) / time.Millisecond)
}
