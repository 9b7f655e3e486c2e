package schedule

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"alertengine/internal/clock"
)

// Task is one deferred unit of work executed at its fire time.
// Params: context canceled on scheduler stop.
// Returns: side effects only; panics are contained per task.
type Task func(ctx context.Context)

// item is one pending heap entry ordered by fire time, then arrival.
type item struct {
	at   time.Time
	seq  uint64
	name string
	task Task
}

// itemHeap orders pending items by fire time with stable arrival tiebreak.
// Params: pending item slice.
// Returns: min-heap behavior for the scheduler loop.
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*item)) }

func (h *itemHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return last
}

// Scheduler is a delay queue keyed by fire time with one dispatch loop.
// Params: injected clock, pending heap, and wakeup channel.
// Returns: cancellable deferred execution for action delays, retries, and escalations.
type Scheduler struct {
	mu      sync.Mutex
	clk     clock.Clock
	logger  *slog.Logger
	pending itemHeap
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	taskWG  sync.WaitGroup
	seq     uint64
	stopped bool
}

// New creates and starts the scheduler loop.
// Params: clock for fire-time comparison and optional logger.
// Returns: running scheduler instance.
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		clk:    clk,
		logger: logger,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&s.pending)
	s.loopWG.Add(1)
	go s.run()
	return s
}

// At schedules one task for execution at the given instant.
// Params: fire time, short task label for logs, and task body.
// Returns: false when the scheduler is already stopped.
func (s *Scheduler) At(fireAt time.Time, name string, task Task) bool {
	if task == nil {
		return false
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.seq++
	heap.Push(&s.pending, &item{at: fireAt, seq: s.seq, name: name, task: task})
	s.mu.Unlock()
	s.signal()
	return true
}

// After schedules one task after the given delay from the scheduler clock.
// Params: delay, short task label, and task body.
// Returns: false when the scheduler is already stopped.
func (s *Scheduler) After(delay time.Duration, name string, task Task) bool {
	return s.At(s.clk.Now().Add(delay), name, task)
}

// Pending returns the number of not-yet-fired tasks.
// Params: none.
// Returns: pending heap size.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// Stop abandons unfired tasks and waits for in-flight tasks to finish.
// Params: none.
// Returns: after loop exit and task drain; idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.taskWG.Wait()
		return
	}
	s.stopped = true
	s.pending = nil
	s.mu.Unlock()

	s.cancel()
	s.loopWG.Wait()
	s.taskWG.Wait()
}

// run dispatches due tasks and sleeps until the next fire time.
// Params: none.
// Returns: exits on scheduler stop.
func (s *Scheduler) run() {
	defer s.loopWG.Done()
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		next, ok := s.popDue()
		if next != nil {
			s.launch(next)
			continue
		}
		if !ok {
			return
		}

		wait, hasNext := s.nextWait()
		if !hasNext {
			select {
			case <-s.ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}
		timer.Reset(wait)
		select {
		case <-s.ctx.Done():
			stopTimer(timer)
			return
		case <-s.wake:
			stopTimer(timer)
		case <-timer.C:
		}
	}
}

// popDue pops the next task whose fire time has passed.
// The drain counter is bumped under the same lock Stop takes, so a popped
// task can never start after Stop's wait has returned.
// Params: none.
// Returns: due item (nil when none) and false when scheduler stopped.
func (s *Scheduler) popDue() (*item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, false
	}
	if s.pending.Len() == 0 {
		return nil, true
	}
	if s.pending[0].at.After(s.clk.Now()) {
		return nil, true
	}
	s.taskWG.Add(1)
	return heap.Pop(&s.pending).(*item), true
}

// nextWait computes sleep duration until the earliest pending task.
// Params: none.
// Returns: wait duration and false when the heap is empty.
func (s *Scheduler) nextWait() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Len() == 0 {
		return 0, false
	}
	wait := s.pending[0].at.Sub(s.clk.Now())
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// launch runs one due task on its own goroutine with panic containment.
// The task is already counted for drain by popDue.
// Params: due item.
// Returns: task tracked for drain on stop.
func (s *Scheduler) launch(entry *item) {
	go func() {
		defer s.taskWG.Done()
		defer func() {
			if recovered := recover(); recovered != nil && s.logger != nil {
				s.logger.Error("scheduled task panicked", "task", entry.name, "panic", recovered)
			}
		}()
		entry.task(s.ctx)
	}()
}

// signal wakes the loop after new work arrives.
// Params: none.
// Returns: non-blocking wakeup.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// stopTimer drains a stopped timer channel.
// Params: timer to stop.
// Returns: timer safe for reuse.
func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
