// Package scheduler runs timed tasks one at a time on a single goroutine.
// All state that tasks touch is therefore mutated from one sequence, and
// other goroutines hand work in through Post.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/banshee-data/gamma.mca/internal/timeutil"
)

// MinDelay is the shortest delay a timed task can be scheduled with.
const MinDelay = time.Millisecond

// idleWait bounds how long Run sleeps with nothing scheduled before
// re-checking the queue.
const idleWait = time.Minute

// Task is a unit of work run on the scheduler goroutine.
type Task func()

// Handle identifies a scheduled task. The zero Handle is never issued.
type Handle uint64

type entry struct {
	id       Handle
	deadline time.Time
	task     Task
	index    int
}

// taskQueue orders entries by deadline, then by scheduling order.
type taskQueue []*entry

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].id < q[j].id
	}
	return q[i].deadline.Before(q[j].deadline)
}
func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *taskQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Scheduler is a timer queue driven by a Clock. Tasks never run
// concurrently with each other.
type Scheduler struct {
	clock timeutil.Clock

	mu      sync.Mutex
	queue   taskQueue
	entries map[Handle]*entry
	lastID  Handle
	wake    chan struct{}
}

// New returns a Scheduler reading time from clock. A nil clock uses the
// real clock.
func New(clock timeutil.Clock) *Scheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{
		clock:   clock,
		entries: make(map[Handle]*entry),
		wake:    make(chan struct{}, 1),
	}
}

// Clock returns the clock the scheduler runs on.
func (s *Scheduler) Clock() timeutil.Clock {
	return s.clock
}

// ScheduleAfter runs task once d has elapsed. Delays below MinDelay are
// raised to MinDelay.
func (s *Scheduler) ScheduleAfter(d time.Duration, task Task) Handle {
	if d < MinDelay {
		d = MinDelay
	}
	return s.schedule(s.clock.Now().Add(d), task)
}

// Post queues task to run as soon as the scheduler is next free. Posted
// tasks run in the order they were posted.
func (s *Scheduler) Post(task Task) Handle {
	return s.schedule(s.clock.Now(), task)
}

func (s *Scheduler) schedule(deadline time.Time, task Task) Handle {
	s.mu.Lock()
	s.lastID++
	e := &entry{id: s.lastID, deadline: deadline, task: task}
	heap.Push(&s.queue, e)
	s.entries[e.id] = e
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return e.id
}

// Cancel removes a pending task. It reports false if the task already ran
// or was cancelled.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h]
	if !ok {
		return false
	}
	delete(s.entries, h)
	heap.Remove(&s.queue, e.index)
	return true
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunDue runs every task whose deadline has passed, in deadline order, and
// returns how many ran. Tasks queued while RunDue is running wait for the
// next call even if they are already due.
func (s *Scheduler) RunDue() int {
	now := s.clock.Now()
	s.mu.Lock()
	cutoff := s.lastID
	s.mu.Unlock()

	ran := 0
	for {
		s.mu.Lock()
		e := s.nextDueLocked(now, cutoff)
		if e == nil {
			s.mu.Unlock()
			return ran
		}
		heap.Remove(&s.queue, e.index)
		delete(s.entries, e.id)
		s.mu.Unlock()

		e.task()
		ran++
	}
}

// nextDueLocked returns the earliest entry that is due and was queued at or
// before cutoff.
func (s *Scheduler) nextDueLocked(now time.Time, cutoff Handle) *entry {
	var best *entry
	for _, e := range s.queue {
		if e.deadline.After(now) || e.id > cutoff {
			continue
		}
		if best == nil || e.deadline.Before(best.deadline) ||
			(e.deadline.Equal(best.deadline) && e.id < best.id) {
			best = e
		}
	}
	return best
}

// NextDeadline returns the deadline of the earliest queued task.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].deadline, true
}

// Run executes tasks as they fall due until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.RunDue()

		wait := idleWait
		if deadline, ok := s.NextDeadline(); ok {
			wait = s.clock.Until(deadline)
		}
		if wait <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		timer := s.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C():
		}
	}
}

// NextDelay returns the delay that keeps a periodic task on its target
// interval after spending spent on the current run, never less than
// MinDelay.
func NextDelay(target, spent time.Duration) time.Duration {
	if d := target - spent; d > MinDelay {
		return d
	}
	return MinDelay
}
