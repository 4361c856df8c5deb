package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stockroomhq/inventory-gateway/internal/storage"
)

func fakeCompile(counter *int32) CompileFunc {
	return func(ctx context.Context, db *storage.Postgres, name string, schema Schema) (*Model, error) {
		if counter != nil {
			atomic.AddInt32(counter, 1)
		}
		return &Model{Name: name, Table: schema.Table}, nil
	}
}

func TestConcurrentAcquireEstablishesOneConnection(t *testing.T) {
	var connects int32
	connect := func(ctx context.Context, databaseName string) (*storage.Postgres, error) {
		atomic.AddInt32(&connects, 1)
		time.Sleep(20 * time.Millisecond)
		return &storage.Postgres{}, nil
	}

	r := New(connect, WithCompileFunc(fakeCompile(nil)))

	const workers = 50
	modelsCh := make(chan *Model, workers)
	errsCh := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, release, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"})
			if err != nil {
				errsCh <- err
				return
			}
			defer release()
			modelsCh <- m
		}()
	}
	wg.Wait()
	close(modelsCh)
	close(errsCh)

	for err := range errsCh {
		t.Fatalf("unexpected acquire error: %v", err)
	}

	if got := atomic.LoadInt32(&connects); got != 1 {
		t.Fatalf("expected exactly 1 connect, got %d", got)
	}

	var first *Model
	for m := range modelsCh {
		if first == nil {
			first = m
			continue
		}
		if m != first {
			t.Fatal("concurrent acquisitions returned different model instances")
		}
	}
}

func TestModelCompiledOncePerName(t *testing.T) {
	connect := func(ctx context.Context, databaseName string) (*storage.Postgres, error) {
		return &storage.Postgres{}, nil
	}

	var compiles int32
	r := New(connect, WithCompileFunc(fakeCompile(&compiles)))

	m1, release1, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"})
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	release1()

	m2, release2, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"})
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	release2()

	if m1 != m2 {
		t.Fatal("expected the identical cached model instance")
	}
	if got := atomic.LoadInt32(&compiles); got != 1 {
		t.Fatalf("expected 1 compile, got %d", got)
	}

	if _, release3, err := r.AcquireModel(context.Background(), "tenant_a", "StockLevel", Schema{Table: "stock_levels"}); err != nil {
		t.Fatalf("acquire of second model: %v", err)
	} else {
		release3()
	}

	if got := atomic.LoadInt32(&compiles); got != 2 {
		t.Fatalf("expected 2 compiles after a second model name, got %d", got)
	}
}

func TestConnectFailureIsNotCached(t *testing.T) {
	var connects int32
	connect := func(ctx context.Context, databaseName string) (*storage.Postgres, error) {
		if atomic.AddInt32(&connects, 1) == 1 {
			time.Sleep(10 * time.Millisecond)
			return nil, errors.New("connection refused")
		}
		return &storage.Postgres{}, nil
	}

	r := New(connect, WithCompileFunc(fakeCompile(nil)))

	const workers = 10
	errsCh := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"})
			errsCh <- err
		}()
	}
	wg.Wait()
	close(errsCh)

	for err := range errsCh {
		if err == nil {
			t.Fatal("expected every waiter to observe the connect failure")
		}
	}

	if got := atomic.LoadInt32(&connects); got != 1 {
		t.Fatalf("expected the failing batch to share 1 connect, got %d", got)
	}

	// The failed entry must be gone; the next request gets a fresh attempt.
	if _, release, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	} else {
		release()
	}

	if got := atomic.LoadInt32(&connects); got != 2 {
		t.Fatalf("expected a fresh connect on retry, got %d", got)
	}
}

func TestConnectFailureIsIsolatedPerTenant(t *testing.T) {
	connect := func(ctx context.Context, databaseName string) (*storage.Postgres, error) {
		if databaseName == "tenant_bad" {
			return nil, errors.New("no such database")
		}
		return &storage.Postgres{}, nil
	}

	r := New(connect, WithCompileFunc(fakeCompile(nil)))

	if _, release, err := r.AcquireModel(context.Background(), "tenant_good", "Product", Schema{Table: "products"}); err != nil {
		t.Fatalf("good tenant: %v", err)
	} else {
		release()
	}

	if _, _, err := r.AcquireModel(context.Background(), "tenant_bad", "Product", Schema{Table: "products"}); err == nil {
		t.Fatal("expected bad tenant connect to fail")
	}

	if r.Len() != 1 {
		t.Fatalf("bad tenant failure must not disturb other entries, len=%d", r.Len())
	}
}

func TestIdleEntryIsEvictedAndReestablished(t *testing.T) {
	var connects int32
	connect := func(ctx context.Context, databaseName string) (*storage.Postgres, error) {
		atomic.AddInt32(&connects, 1)
		return &storage.Postgres{}, nil
	}

	r := New(connect,
		WithCompileFunc(fakeCompile(nil)),
		WithIdleTTL(10*time.Millisecond),
	)

	_, release, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()

	time.Sleep(20 * time.Millisecond)
	r.sweep()

	if r.Len() != 0 {
		t.Fatalf("expected idle entry to be evicted, len=%d", r.Len())
	}

	// The next request re-establishes transparently.
	if _, release, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"}); err != nil {
		t.Fatalf("acquire after eviction: %v", err)
	} else {
		release()
	}

	if got := atomic.LoadInt32(&connects); got != 2 {
		t.Fatalf("expected reconnect after eviction, connects=%d", got)
	}
}

func TestEntryWithOutstandingReferenceIsNeverEvicted(t *testing.T) {
	connect := func(ctx context.Context, databaseName string) (*storage.Postgres, error) {
		return &storage.Postgres{}, nil
	}

	r := New(connect,
		WithCompileFunc(fakeCompile(nil)),
		WithIdleTTL(10*time.Millisecond),
	)

	_, release, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	r.sweep()

	if r.Len() != 1 {
		t.Fatal("entry actively serving a request was evicted")
	}

	release()
	time.Sleep(20 * time.Millisecond)
	r.sweep()

	if r.Len() != 0 {
		t.Fatal("released idle entry should have been evicted")
	}
}

func TestCallerCancellationDoesNotDiscardConnection(t *testing.T) {
	var connects int32
	connect := func(ctx context.Context, databaseName string) (*storage.Postgres, error) {
		atomic.AddInt32(&connects, 1)
		time.Sleep(50 * time.Millisecond)
		return &storage.Postgres{}, nil
	}

	r := New(connect, WithCompileFunc(fakeCompile(nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if _, _, err := r.AcquireModel(ctx, "tenant_a", "Product", Schema{Table: "products"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline error, got %v", err)
	}

	// The in-flight connect finishes on its own deadline and is kept.
	if _, release, err := r.AcquireModel(context.Background(), "tenant_a", "Product", Schema{Table: "products"}); err != nil {
		t.Fatalf("acquire after cancelled wait: %v", err)
	} else {
		release()
	}

	if got := atomic.LoadInt32(&connects); got != 1 {
		t.Fatalf("expected the abandoned connect to be reused, connects=%d", got)
	}
}
