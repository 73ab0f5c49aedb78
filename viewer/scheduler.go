package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/drummonds/goPDFView/config"
)

// RenderTier distinguishes the fast capped-scale base pass from the full
// resolution pass. The two tiers run independently per page.
type RenderTier int

const (
	TierBase RenderTier = iota
	TierHighRes
)

func (t RenderTier) String() string {
	if t == TierHighRes {
		return "highres"
	}
	return "base"
}

type taskKey struct {
	page int
	tier RenderTier
}

// RenderTask is one unit of scheduled work. Lifecycle: Queued -> Active ->
// (Completed | Cancelled); terminal states free the page's slot immediately.
type RenderTask struct {
	PageNumber int
	Tier       RenderTier
	Priority   int // 0 is most urgent
	Enqueued   time.Time
	Token      *RenderToken

	seq    uint64
	active bool
}

// RenderExecutor runs a dequeued task. A cancelled task must return
// ErrRenderCancelled (possibly wrapped); any other error is a page failure.
type RenderExecutor func(ctx context.Context, task *RenderTask) error

// RenderScheduler is the priority queue and cancellation engine for per-page
// render work. At most maxConcurrent tasks run at once; queued tasks for
// pages that scrolled out of relevance are pruned without ever starting.
type RenderScheduler struct {
	mu            sync.Mutex
	cfg           config.ViewerConfig
	executor      RenderExecutor
	tasks         map[taskKey]*RenderTask
	queue         []*RenderTask // queued tasks only; active ones leave the queue
	activeCount   int
	maxConcurrent int
	seq           uint64
	destroyed     bool

	lastSweep  time.Time
	lastScroll time.Time
	rapid      bool

	wake chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewRenderScheduler starts the dispatch loop immediately
func NewRenderScheduler(cfg config.ViewerConfig, executor RenderExecutor) *RenderScheduler {
	s := &RenderScheduler{
		cfg:           cfg,
		executor:      executor,
		tasks:         make(map[taskKey]*RenderTask),
		maxConcurrent: cfg.MaxConcurrentPages,
		wake:          make(chan struct{}, 1),
		quit:          make(chan struct{}),
	}
	if s.maxConcurrent < 1 {
		s.maxConcurrent = 1
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Enqueue queues a render for (page, tier). Enqueueing a page that already
// has a queued or active task at the same tier is a no-op, which prevents
// duplicate work. Returns false when nothing was queued.
func (s *RenderScheduler) Enqueue(page int, tier RenderTier, priority int) bool {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false
	}
	key := taskKey{page: page, tier: tier}
	if _, exists := s.tasks[key]; exists {
		s.mu.Unlock()
		return false
	}

	s.seq++
	task := &RenderTask{
		PageNumber: page,
		Tier:       tier,
		Priority:   priority,
		Enqueued:   time.Now(),
		Token:      NewRenderToken(context.Background()),
		seq:        s.seq,
	}
	s.tasks[key] = task
	s.queue = append(s.queue, task)
	s.mu.Unlock()

	s.signal()
	return true
}

func (s *RenderScheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch is the processing loop: while below the concurrency cap, start
// the queued task with the lowest priority (FIFO among equals); otherwise
// block until an active task completes.
func (s *RenderScheduler) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.destroyed {
				s.mu.Unlock()
				return
			}
			if s.activeCount >= s.maxConcurrent {
				s.mu.Unlock()
				break
			}
			task := s.dequeueBestLocked()
			if task == nil {
				s.mu.Unlock()
				break
			}
			task.active = true
			s.activeCount++
			s.wg.Add(1)
			s.mu.Unlock()

			go s.run(task)
		}
	}
}

// dequeueBestLocked pops the most urgent live task, discarding any queued
// task whose token was already cancelled so it never reaches the active
// state
func (s *RenderScheduler) dequeueBestLocked() *RenderTask {
	for len(s.queue) > 0 {
		best := 0
		for i := 1; i < len(s.queue); i++ {
			candidate := s.queue[i]
			current := s.queue[best]
			if candidate.Priority < current.Priority ||
				(candidate.Priority == current.Priority && candidate.seq < current.seq) {
				best = i
			}
		}
		task := s.queue[best]
		s.queue = append(s.queue[:best], s.queue[best+1:]...)

		if task.Token.Cancelled() {
			delete(s.tasks, taskKey{page: task.PageNumber, tier: task.Tier})
			continue
		}
		return task
	}
	return nil
}

func (s *RenderScheduler) run(task *RenderTask) {
	defer s.wg.Done()

	err := s.executor(task.Token.Context(), task)

	s.mu.Lock()
	key := taskKey{page: task.PageNumber, tier: task.Tier}
	if s.tasks[key] == task {
		delete(s.tasks, key)
	}
	s.activeCount--
	s.mu.Unlock()
	s.signal()

	switch {
	case err == nil:
	case errors.Is(err, ErrRenderCancelled) || errors.Is(err, context.Canceled):
		Logger.Debug("Render task cancelled", "page", task.PageNumber, "tier", task.Tier.String())
	default:
		Logger.Error("Render task failed", "page", task.PageNumber, "tier", task.Tier.String(), "error", err)
	}
}

// CancelPage cancels queued and active tasks for a page at every tier
func (s *RenderScheduler) CancelPage(page int) {
	s.CancelTier(page, TierBase)
	s.CancelTier(page, TierHighRes)
}

// CancelTier cancels the queued or active task for (page, tier) if present
func (s *RenderScheduler) CancelTier(page int, tier RenderTier) {
	s.mu.Lock()
	key := taskKey{page: page, tier: tier}
	task, exists := s.tasks[key]
	if exists {
		task.Token.Cancel()
		if !task.active {
			s.removeQueuedLocked(task)
			delete(s.tasks, key)
		}
	}
	s.mu.Unlock()
}

func (s *RenderScheduler) removeQueuedLocked(task *RenderTask) {
	for i, queued := range s.queue {
		if queued == task {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// CancelAll cancels everything, queued and active. Used on scale changes
// and destroy.
func (s *RenderScheduler) CancelAll() {
	s.mu.Lock()
	for key, task := range s.tasks {
		task.Token.Cancel()
		if !task.active {
			delete(s.tasks, key)
		}
	}
	s.queue = s.queue[:0]
	s.mu.Unlock()
}

// CancelDistantTasks prunes every queued or active task whose page distance
// from centerPage exceeds the configured threshold. Throttled so rapid
// scroll streams do not sweep on every event. Returns how many tasks were
// cancelled.
func (s *RenderScheduler) CancelDistantTasks(centerPage int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	minInterval := time.Duration(s.cfg.CancelMinIntervalMS) * time.Millisecond
	if minInterval > 0 && time.Since(s.lastSweep) < minInterval {
		return 0
	}
	s.lastSweep = time.Now()

	cancelled := 0
	for key, task := range s.tasks {
		distance := task.PageNumber - centerPage
		if distance < 0 {
			distance = -distance
		}
		if distance <= s.cfg.CancelDistance {
			continue
		}
		task.Token.Cancel()
		if !task.active {
			s.removeQueuedLocked(task)
			delete(s.tasks, key)
		}
		cancelled++
	}
	if cancelled > 0 {
		Logger.Debug("Pruned distant render tasks", "center", centerPage, "cancelled", cancelled)
	}
	return cancelled
}

// NoteScroll feeds scroll notifications into the rapid-scroll detector.
// Consecutive notifications arriving faster than the threshold interval flag
// rapid scrolling, which callers use to skip expensive high resolution
// passes until scrolling settles.
func (s *RenderScheduler) NoteScroll() {
	s.mu.Lock()
	now := time.Now()
	threshold := time.Duration(s.cfg.RapidScrollMS) * time.Millisecond
	s.rapid = !s.lastScroll.IsZero() && now.Sub(s.lastScroll) < threshold
	s.lastScroll = now
	s.mu.Unlock()
}

// IsRapidScrolling reports whether the user is still mid-fling. The flag
// decays once no scroll notification arrives for a few threshold intervals.
func (s *RenderScheduler) IsRapidScrolling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rapid {
		return false
	}
	settle := 3 * time.Duration(s.cfg.RapidScrollMS) * time.Millisecond
	if time.Since(s.lastScroll) >= settle {
		s.rapid = false
	}
	return s.rapid
}

// SetMaxConcurrent adjusts the concurrency cap, the memory manager's main
// back-pressure lever
func (s *RenderScheduler) SetMaxConcurrent(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.maxConcurrent = n
	s.mu.Unlock()
	s.signal()
}

// HasTask reports whether (page, tier) is queued or active
func (s *RenderScheduler) HasTask(page int, tier RenderTier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.tasks[taskKey{page: page, tier: tier}]
	return exists
}

// QueueLength returns the number of queued (not yet active) tasks
func (s *RenderScheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ActiveCount returns the number of tasks currently executing
func (s *RenderScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCount
}

// Destroy cancels all work and stops the dispatch loop. Idempotent; blocks
// until in-flight executors return.
func (s *RenderScheduler) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	for _, task := range s.tasks {
		task.Token.Cancel()
	}
	s.tasks = make(map[taskKey]*RenderTask)
	s.queue = nil
	s.mu.Unlock()

	close(s.quit)
	s.wg.Wait()
}
