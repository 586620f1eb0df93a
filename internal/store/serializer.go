package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/metrics"
)

var (
	// ErrSerializerClosed is returned for writes submitted to a serializer
	// that is not running.
	ErrSerializerClosed = errors.New("write serializer is not running")
	// ErrReentrantWrite is returned when a write operation submits another
	// write to the serializer that is running it.
	ErrReentrantWrite = errors.New("write submitted from inside a write operation")
)

const defaultQueueSize = 64

// WriteFunc is a unit of work run against a fresh write context. Returning
// an error discards every change it made.
type WriteFunc func(ctx context.Context, wc *WriteContext) error

const (
	jobPending int32 = iota
	jobRunning
	jobCancelled
)

type job struct {
	ctx      context.Context
	op       WriteFunc
	state    atomic.Int32
	enqueued time.Time
	result   chan error
}

type writerKey struct{}

// Serializer runs write operations one at a time in submission order on a
// dedicated worker goroutine.
type Serializer struct {
	mu      sync.RWMutex
	engine  *Engine
	logger  *slog.Logger
	metrics *metrics.WriteMetrics
	queue   chan *job
	started bool

	quit     chan struct{}
	quitOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

type SerializerOption func(*Serializer)

// WithQueueSize sets how many writes may wait before submitters block.
func WithQueueSize(n int) SerializerOption {
	return func(s *Serializer) {
		if n > 0 {
			s.queue = make(chan *job, n)
		}
	}
}

func WithMetrics(m *metrics.WriteMetrics) SerializerOption {
	return func(s *Serializer) { s.metrics = m }
}

func WithLogger(l *slog.Logger) SerializerOption {
	return func(s *Serializer) { s.logger = l }
}

// NewSerializer creates a serializer for engine. Call Start before
// submitting writes.
func NewSerializer(engine *Engine, opts ...SerializerOption) *Serializer {
	s := &Serializer{
		engine: engine,
		logger: slog.Default(),
		queue:  make(chan *job, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker. It runs until ctx is cancelled or Stop is called.
func (s *Serializer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		for {
			select {
			case j := <-s.queue:
				if ctx.Err() != nil {
					s.reject(j)
					continue
				}
				s.run(j)
			case <-ctx.Done():
				s.quitOnce.Do(func() { close(s.quit) })
				s.drain()
				return
			}
		}
	}()
}

// Stop rejects writes still waiting in the queue, waits for the running one
// to finish, and stops the worker.
func (s *Serializer) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// PerformSave submits op and blocks until it has been committed or
// discarded. If ctx ends before the worker picks op up, op never runs and
// ctx.Err() is returned. Once op has started it always runs to completion.
//
// op must not call PerformSave with the context it was given.
func (s *Serializer) PerformSave(ctx context.Context, op WriteFunc) error {
	if owner, ok := ctx.Value(writerKey{}).(*Serializer); ok && owner == s {
		return ErrReentrantWrite
	}

	s.mu.RLock()
	quit, done := s.quit, s.done
	s.mu.RUnlock()
	if quit == nil {
		return ErrSerializerClosed
	}

	j := &job{ctx: ctx, op: op, enqueued: time.Now(), result: make(chan error, 1)}

	select {
	case <-quit:
		return ErrSerializerClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case s.queue <- j:
		s.metrics.Enqueued()
	case <-quit:
		return ErrSerializerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobPending, jobCancelled) {
			return ctx.Err()
		}
		return <-j.result
	case <-done:
		if j.state.CompareAndSwap(jobPending, jobCancelled) {
			return ErrSerializerClosed
		}
		return <-j.result
	}
}

func (s *Serializer) run(j *job) {
	s.metrics.Dequeued(time.Since(j.enqueued))
	if !j.state.CompareAndSwap(jobPending, jobRunning) {
		s.metrics.Finished(metrics.OutcomeRejected, 0)
		return
	}

	start := time.Now()
	ctx := context.WithValue(context.WithoutCancel(j.ctx), writerKey{}, s)
	outcome, err := s.execute(ctx, j.op)
	s.metrics.Finished(outcome, time.Since(start))
	if err != nil {
		s.logger.Debug("write failed", "outcome", outcome, "error", err)
	}
	j.result <- err
}

func (s *Serializer) execute(ctx context.Context, op WriteFunc) (outcome string, err error) {
	wc, err := s.engine.NewWriteContext(ctx)
	if err != nil {
		return metrics.OutcomeFailed, err
	}

	defer func() {
		if r := recover(); r != nil {
			s.engine.Discard(wc)
			s.logger.Error("write operation panicked", "panic", r)
			outcome, err = metrics.OutcomeFailed, fmt.Errorf("write operation panicked: %v", r)
		}
	}()

	if err := op(ctx, wc); err != nil {
		s.engine.Discard(wc)
		return metrics.OutcomeFailed, err
	}

	if !wc.Changed() {
		s.engine.Discard(wc)
		return metrics.OutcomeNoop, nil
	}

	if err := s.engine.Commit(wc); err != nil {
		return metrics.OutcomeFailed, err
	}
	return metrics.OutcomeCommitted, nil
}

func (s *Serializer) reject(j *job) {
	s.metrics.Dequeued(time.Since(j.enqueued))
	if j.state.CompareAndSwap(jobPending, jobCancelled) {
		j.result <- ErrSerializerClosed
	}
	s.metrics.Finished(metrics.OutcomeRejected, 0)
}

func (s *Serializer) drain() {
	for {
		select {
		case j := <-s.queue:
			s.reject(j)
		default:
			return
		}
	}
}
