// Package scheduler runs periodic maintenance: expiring finished jobs,
// clearing stale verification codes and trimming the request log.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// ErrLocked means another instance holds the task's lock.
var ErrLocked = errors.New("scheduler: task locked by another instance")

// Locker serialises a task across instances.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (unlock func(), err error)
}

// RedisLocker takes redsync mutexes. Each lock is tried once; a busy lock
// means another instance is already running the task.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
}

// NewRedisLocker builds a locker over an existing client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client)), prefix: "fashion-shoot:cron:"}
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	mutex := l.rs.NewMutex(l.prefix+name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return func() {
		if _, err := mutex.Unlock(); err != nil {
			log.Printf("[scheduler] unlock %s: %v", name, err)
		}
	}, nil
}

// Task is one scheduled maintenance run. Run reports how many rows it touched.
type Task struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) (int64, error)
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron   *cron.Cron
	locker Locker
	tasks  map[string]Task
}

// New creates a Scheduler. A nil locker runs every task locally.
func New(locker Locker) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		locker: locker,
		tasks:  map[string]Task{},
	}
}

// Add registers a task under its cron spec.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return errors.New("scheduler: task needs a name and a run func")
	}
	if t.Timeout <= 0 {
		t.Timeout = 5 * time.Minute
	}
	if _, err := s.cron.AddFunc(t.Spec, func() { _ = s.run(context.Background(), t) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", t.Name, t.Spec, err)
	}
	s.tasks[t.Name] = t
	log.Printf("[scheduler] registered %s (%s)", t.Name, t.Spec)
	return nil
}

// RunNow executes a registered task immediately.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	t, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown task %q", name)
	}
	return s.run(ctx, t)
}

func (s *Scheduler) run(ctx context.Context, t Task) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, t.Name, t.Timeout)
		if err != nil {
			log.Printf("[scheduler] skipping %s: %v", t.Name, err)
			return err
		}
		defer unlock()
	}

	start := time.Now()
	n, err := t.Run(ctx)
	if err != nil {
		log.Printf("[scheduler] %s failed after %s: %v", t.Name, time.Since(start), err)
		return err
	}
	log.Printf("[scheduler] %s done: %d rows in %s", t.Name, n, time.Since(start))
	return nil
}

// Start begins firing tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running tasks until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
