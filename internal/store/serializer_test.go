package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func setupSerializer(t *testing.T, opts ...SerializerOption) (*Serializer, *Engine) {
	t.Helper()
	engine := openTestEngine(t)
	s := NewSerializer(engine, opts...)
	s.Start(context.Background())
	t.Cleanup(func() {
		s.Stop()
		engine.Close()
	})
	return s, engine
}

func insertList(ctx context.Context, wc *WriteContext, id string, sortOrder int) error {
	_, err := wc.ExecContext(ctx,
		`INSERT INTO shopping_lists (id, name, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, "list "+id, sortOrder, time.Now().UTC(), time.Now().UTC(),
	)
	return err
}

func countLists(t *testing.T, e *Engine) int {
	t.Helper()
	var n int
	if err := e.Read().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM shopping_lists`).Scan(&n); err != nil {
		t.Fatalf("count lists: %v", err)
	}
	return n
}

// waitQueued blocks until n jobs sit in the queue.
func waitQueued(t *testing.T, s *Serializer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.queue) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d queued jobs, have %d", n, len(s.queue))
		}
		time.Sleep(time.Millisecond)
	}
}

// blockWorker submits a job that holds the worker until release is closed.
func blockWorker(t *testing.T, s *Serializer) (release func(), finished <-chan error) {
	t.Helper()
	started := make(chan struct{})
	gate := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
			close(started)
			<-gate
			return nil
		})
	}()
	<-started
	return func() { close(gate) }, done
}

func TestPerformSaveCommits(t *testing.T) {
	s, engine := setupSerializer(t)

	err := s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
		return insertList(ctx, wc, "a", 0)
	})
	if err != nil {
		t.Fatalf("perform save: %v", err)
	}
	if got := countLists(t, engine); got != 1 {
		t.Errorf("lists = %d, want 1", got)
	}
}

func TestPerformSaveRollsBackOnError(t *testing.T) {
	s, engine := setupSerializer(t)
	boom := errors.New("boom")

	err := s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
		if err := insertList(ctx, wc, "a", 0); err != nil {
			return err
		}
		if err := insertList(ctx, wc, "b", 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := countLists(t, engine); got != 0 {
		t.Errorf("lists = %d, want 0 after rollback", got)
	}
}

func TestPerformSaveRecoversPanic(t *testing.T) {
	s, engine := setupSerializer(t)

	err := s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
		if err := insertList(ctx, wc, "a", 0); err != nil {
			return err
		}
		panic("unexpected")
	})
	if err == nil {
		t.Fatal("expected error from panicking operation")
	}
	if got := countLists(t, engine); got != 0 {
		t.Errorf("lists = %d, want 0 after panic", got)
	}

	// The worker keeps serving writes.
	err = s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
		return insertList(ctx, wc, "b", 0)
	})
	if err != nil {
		t.Fatalf("write after panic: %v", err)
	}
	if got := countLists(t, engine); got != 1 {
		t.Errorf("lists = %d, want 1", got)
	}
}

func TestPerformSaveFIFO(t *testing.T) {
	s, _ := setupSerializer(t)
	release, first := blockWorker(t, s)

	const n = 10
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
				order = append(order, i)
				return nil
			})
			if err != nil {
				t.Errorf("job %d: %v", i, err)
			}
		}(i)
		waitQueued(t, s, i+1)
	}

	release()
	if err := <-first; err != nil {
		t.Fatalf("blocking job: %v", err)
	}
	wg.Wait()

	if len(order) != n {
		t.Fatalf("ran %d jobs, want %d", len(order), n)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want submission order", order)
		}
	}
}

func TestPerformSaveNoInterleaving(t *testing.T) {
	s, engine := setupSerializer(t)
	ctx := context.Background()

	if err := s.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		return insertList(ctx, wc, "counter", 0)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const writers = 40
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			return s.PerformSave(gctx, func(ctx context.Context, wc *WriteContext) error {
				var n int
				if err := wc.QueryRowContext(ctx, `SELECT sort_order FROM shopping_lists WHERE id = 'counter'`).Scan(&n); err != nil {
					return err
				}
				// Give another writer the chance to interleave if it could.
				time.Sleep(time.Millisecond)
				_, err := wc.ExecContext(ctx, `UPDATE shopping_lists SET sort_order = ? WHERE id = 'counter'`, n+1)
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent writes: %v", err)
	}

	var got int
	if err := engine.Read().QueryRowContext(ctx, `SELECT sort_order FROM shopping_lists WHERE id = 'counter'`).Scan(&got); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if got != writers {
		t.Errorf("counter = %d, want %d", got, writers)
	}
}

func TestPerformSaveReadsSeeOnlyCommittedState(t *testing.T) {
	s, engine := setupSerializer(t)
	inserted := make(chan struct{})
	proceed := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
			if err := insertList(ctx, wc, "a", 0); err != nil {
				return err
			}
			close(inserted)
			<-proceed
			return nil
		})
	}()

	<-inserted
	if got := countLists(t, engine); got != 0 {
		t.Errorf("uncommitted write visible to reader: lists = %d", got)
	}
	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("perform save: %v", err)
	}
	if got := countLists(t, engine); got != 1 {
		t.Errorf("lists = %d, want 1 after commit", got)
	}
}

func TestPerformSaveReentrant(t *testing.T) {
	s, _ := setupSerializer(t)

	var inner error
	err := s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
		inner = s.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("outer: %v", err)
	}
	if !errors.Is(inner, ErrReentrantWrite) {
		t.Errorf("inner = %v, want ErrReentrantWrite", inner)
	}
}

func TestPerformSaveCancelledBeforeStart(t *testing.T) {
	s, engine := setupSerializer(t)
	release, first := blockWorker(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	done := make(chan error, 1)
	go func() {
		done <- s.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
			ran = true
			return insertList(ctx, wc, "a", 0)
		})
	}()
	waitQueued(t, s, 1)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	release()
	if err := <-first; err != nil {
		t.Fatalf("blocking job: %v", err)
	}

	// A later write proves the cancelled job was skipped, not just delayed.
	if err := s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
		return nil
	}); err != nil {
		t.Fatalf("follow-up write: %v", err)
	}
	if ran {
		t.Error("cancelled job ran")
	}
	if got := countLists(t, engine); got != 0 {
		t.Errorf("lists = %d, want 0", got)
	}
}

func TestPerformSaveRunsToCompletionAfterStart(t *testing.T) {
	s, engine := setupSerializer(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.PerformSave(ctx, func(opCtx context.Context, wc *WriteContext) error {
		cancel()
		if opCtx.Err() != nil {
			return fmt.Errorf("operation context cancelled mid-write: %w", opCtx.Err())
		}
		return insertList(opCtx, wc, "a", 0)
	})
	if err != nil {
		t.Fatalf("perform save: %v", err)
	}
	if got := countLists(t, engine); got != 1 {
		t.Errorf("lists = %d, want 1", got)
	}
}

func TestPerformSaveNotRunning(t *testing.T) {
	engine := openTestEngine(t)
	t.Cleanup(func() { engine.Close() })

	s := NewSerializer(engine)
	noop := func(ctx context.Context, wc *WriteContext) error { return nil }
	if err := s.PerformSave(context.Background(), noop); !errors.Is(err, ErrSerializerClosed) {
		t.Errorf("before start: got %v, want ErrSerializerClosed", err)
	}

	s.Start(context.Background())
	s.Stop()
	if err := s.PerformSave(context.Background(), noop); !errors.Is(err, ErrSerializerClosed) {
		t.Errorf("after stop: got %v, want ErrSerializerClosed", err)
	}
}

func TestStopRejectsQueuedJobs(t *testing.T) {
	s, _ := setupSerializer(t)
	release, first := blockWorker(t, s)

	queued := make(chan error, 1)
	go func() {
		queued <- s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
			return nil
		})
	}()
	waitQueued(t, s, 1)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	release()
	<-stopped

	if err := <-first; err != nil {
		t.Errorf("running job: %v", err)
	}
	if err := <-queued; !errors.Is(err, ErrSerializerClosed) {
		t.Errorf("queued job: got %v, want ErrSerializerClosed", err)
	}
}

func TestSerializerMetrics(t *testing.T) {
	m := metrics.NewWriteMetrics(prometheus.NewRegistry())
	s, _ := setupSerializer(t, WithMetrics(m))
	ctx := context.Background()

	s.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error { return insertList(ctx, wc, "a", 0) })
	s.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error { return nil })
	s.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error { return errors.New("nope") })

	if got := testutil.ToFloat64(m.Writes(metrics.OutcomeCommitted)); got != 1 {
		t.Errorf("committed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Writes(metrics.OutcomeNoop)); got != 1 {
		t.Errorf("noop = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Writes(metrics.OutcomeFailed)); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Depth()); got != 0 {
		t.Errorf("depth = %v, want 0", got)
	}
}

func TestSerializerStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := openTestEngine(t)
	s := NewSerializer(engine)
	s.Start(context.Background())

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("l%d", i)
		if err := s.PerformSave(context.Background(), func(ctx context.Context, wc *WriteContext) error {
			return insertList(ctx, wc, id, i)
		}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	s.Stop()
	if err := engine.Close(); err != nil {
		t.Fatalf("close engine: %v", err)
	}
}
