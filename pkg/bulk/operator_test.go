package bulk

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTransport records requests. When gate is set, every call blocks
// until the gate is closed or receives a value.
type fakeTransport struct {
	gate    chan struct{}
	respond func(req Request, call int) (*Response, error)

	mu       sync.Mutex
	requests []Request

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeTransport) Bulk(ctx context.Context, req Request) (*Response, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	call := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(req, call)
	}
	return &Response{}, nil
}

func (f *fakeTransport) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *fakeTransport) TotalActions() int {
	total := 0
	for _, r := range f.Requests() {
		total += countActions(r.Payload)
	}
	return total
}

func countActions(payload []byte) int {
	return bytes.Count(payload, []byte("\n")) / 2
}

// recordingLifecycle records hook invocations.
type recordingLifecycle struct {
	mu       sync.Mutex
	before   []int64
	after    []int64
	failures []error

	panicAfter bool
}

func (r *recordingLifecycle) BeforeDispatch(id int64, op *Operator, b *Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before = append(r.before, id)
}

func (r *recordingLifecycle) AfterDispatch(id int64, op *Operator, b *Batch, resp *Response) {
	r.mu.Lock()
	r.after = append(r.after, id)
	r.mu.Unlock()
	if r.panicAfter {
		panic("hook failure")
	}
}

func (r *recordingLifecycle) AfterDispatchFailure(id int64, op *Operator, b *Batch, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *recordingLifecycle) counts() (before, after, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.before), len(r.after), len(r.failures)
}

func indexAction(t *testing.T, id string) Action {
	t.Helper()
	return mustAction(t, NewActionBuilder().Operation(OpIndex).Index("test").ID(id).Body([]byte(`{"n":1}`)))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestOperator_MaxActionsThreshold(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr, WithMaxActions(5))
	defer op.Close()

	for i := 0; i < 4; i++ {
		if err := op.Add(indexAction(t, "a")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	op.Wait()
	if n := len(tr.Requests()); n != 0 {
		t.Fatalf("requests after 4 adds = %d, want 0", n)
	}
	if op.Pending() != 4 {
		t.Errorf("Pending() = %d, want 4", op.Pending())
	}

	if err := op.Add(indexAction(t, "a")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	op.Wait()

	reqs := tr.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests after 5 adds = %d, want 1", len(reqs))
	}
	if got := countActions(reqs[0].Payload); got != 5 {
		t.Errorf("batch size = %d, want 5", got)
	}
	if op.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", op.Pending())
	}
}

func TestOperator_AddManyInOneCallFlushesOnce(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr, WithMaxActions(5))
	defer op.Close()

	actions := make([]Action, 12)
	for i := range actions {
		actions[i] = indexAction(t, "a")
	}
	if err := op.Add(actions...); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	op.Wait()

	reqs := tr.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if got := countActions(reqs[0].Payload); got != 12 {
		t.Errorf("batch size = %d, want 12", got)
	}
}

func TestOperator_Flush(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr)
	defer op.Close()

	op.Flush()
	op.Wait()
	if n := len(tr.Requests()); n != 0 {
		t.Fatalf("flush of empty operator sent %d requests", n)
	}

	for i := 0; i < 3; i++ {
		if err := op.Add(indexAction(t, "a")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	op.Flush()
	op.Wait()

	reqs := tr.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Endpoint != DefaultEndpoint {
		t.Errorf("Endpoint = %v, want %v", req.Endpoint, DefaultEndpoint)
	}
	if req.ContentType != ContentType {
		t.Errorf("ContentType = %v, want %v", req.ContentType, ContentType)
	}
	if req.Operator != op.Name() || req.Operator == "" {
		t.Errorf("Operator = %q, want %q", req.Operator, op.Name())
	}
}

func TestOperator_Closed(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr, WithMaxActions(2))

	if err := op.Add(indexAction(t, "a")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := op.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := op.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if !op.Closed() {
		t.Error("Closed() = false, want true")
	}

	if err := op.Add(indexAction(t, "b")); !errors.Is(err, ErrClosed) {
		t.Errorf("Add() after Close error = %v, want ErrClosed", err)
	}
	if op.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", op.Pending())
	}

	op.Flush()
	op.Wait()
	if n := len(tr.Requests()); n != 0 {
		t.Errorf("requests after Close = %d, want 0", n)
	}
}

func TestOperator_AddRejectsInvalidAction(t *testing.T) {
	op := New(&fakeTransport{})
	defer op.Close()

	err := op.Add(indexAction(t, "a"), Action{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Add() error = %v, want ErrValidation", err)
	}
	if op.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", op.Pending())
	}
}

func TestOperator_ConcurrencyBound(t *testing.T) {
	gate := make(chan struct{})
	tr := &fakeTransport{gate: gate}
	op := New(tr, WithConcurrency(2))
	defer op.Close()

	actions := make([]Action, 5)
	for i := range actions {
		actions[i] = indexAction(t, "a")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, a := range actions {
			_ = op.Add(a)
			op.Flush()
		}
	}()

	waitFor(t, time.Second, func() bool { return tr.active.Load() == 2 })

	select {
	case <-done:
		t.Fatal("producer finished while all permits were held")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not finish after permits were released")
	}
	op.Wait()

	if got := tr.maxActive.Load(); got > 2 {
		t.Errorf("max concurrent dispatches = %d, want <= 2", got)
	}
	if got := len(tr.Requests()); got != 5 {
		t.Errorf("requests = %d, want 5", got)
	}
}

func TestOperator_ConcurrencyClampedToOne(t *testing.T) {
	gate := make(chan struct{})
	tr := &fakeTransport{gate: gate}
	op := New(tr, WithConcurrency(0))
	defer op.Close()

	a, b := indexAction(t, "a"), indexAction(t, "b")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = op.Add(a)
		op.Flush()
		_ = op.Add(b)
		op.Flush()
	}()

	waitFor(t, time.Second, func() bool { return tr.active.Load() == 1 })
	select {
	case <-done:
		t.Fatal("second flush did not wait for a permit")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	<-done
	op.Wait()
	if got := tr.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent dispatches = %d, want 1", got)
	}
}

func TestOperator_EndToEnd(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr, WithMaxActions(1000))
	defer op.Close()

	actions := make([]Action, 1000)
	for i := range actions {
		actions[i] = mustAction(t, NewActionBuilder().
			Operation(OpIndex).
			Index("test").
			ID(strconv.Itoa(i)).
			Body([]byte(`{"n":`+strconv.Itoa(i)+`}`)))
	}

	for i, a := range actions {
		if err := op.Add(a); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}
	if got := op.Pending(); got != 0 {
		t.Errorf("Pending() after threshold = %d, want 0", got)
	}

	op.Wait()

	reqs := tr.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if want := NewBatch(actions...).Payload(); !bytes.Equal(reqs[0].Payload, want) {
		t.Errorf("payload does not match the 1000 actions in insertion order")
	}
}

func TestOperator_ConcurrentProducers(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr, WithMaxActions(100), WithConcurrency(4))
	defer op.Close()

	a := mustAction(t, NewActionBuilder().Operation(OpIndex).Body([]byte(`{}`)))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				_ = op.Add(a)
			}
		}()
	}
	wg.Wait()
	op.Flush()
	op.Wait()

	if got := tr.TotalActions(); got != 1000 {
		t.Errorf("actions transported = %d, want 1000", got)
	}
	if op.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", op.Pending())
	}
}

func TestOperator_WaitCoversBatchWaitingForPermit(t *testing.T) {
	gate := make(chan struct{})
	tr := &fakeTransport{gate: gate}
	op := New(tr, WithConcurrency(1))
	defer op.Close()

	a := indexAction(t, "a")
	b := indexAction(t, "b")

	if err := op.Add(a); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	op.Flush()

	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		_ = op.Add(b)
		op.Flush()
	}()
	waitFor(t, 2*time.Second, func() bool { return op.Pending() == 0 && tr.active.Load() == 1 })

	waited := make(chan struct{})
	go func() {
		op.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait() returned while dispatches were outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	<-flushed
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after dispatches finished")
	}
	if got := len(tr.Requests()); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestOperator_WaitWithRunningTimer(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr, WithInterval(time.Millisecond))
	defer op.Close()

	a := indexAction(t, "a")
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = op.Add(a)
				time.Sleep(50 * time.Microsecond)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				op.Wait()
			}
		}
	}()

	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()

	op.Flush()
	op.Wait()
	if got := op.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestOperator_IntervalFlush(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr, WithInterval(20*time.Millisecond))
	defer op.Close()

	for i := 0; i < 5; i++ {
		if err := op.Add(indexAction(t, "a")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return tr.TotalActions() == 5 })
	if op.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", op.Pending())
	}
}

func TestOperator_CloseStopsTimer(t *testing.T) {
	tr := &fakeTransport{}
	op := New(tr, WithInterval(50*time.Millisecond))

	if err := op.Add(indexAction(t, "a")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	op.Close()

	time.Sleep(150 * time.Millisecond)
	op.Wait()
	if n := len(tr.Requests()); n != 0 {
		t.Errorf("requests after Close = %d, want 0", n)
	}
}

func TestOperator_LifecycleHooks(t *testing.T) {
	transportErr := errors.New("connection refused")
	tr := &fakeTransport{
		respond: func(req Request, call int) (*Response, error) {
			if call == 1 {
				return nil, transportErr
			}
			return &Response{}, nil
		},
	}
	lc := &recordingLifecycle{}
	op := New(tr, WithLifecycle(lc), WithSequence(NewSequence(100)))
	defer op.Close()

	for i := 0; i < 2; i++ {
		if err := op.Add(indexAction(t, "a")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		op.Flush()
		op.Wait()
	}

	before, after, failures := lc.counts()
	if before != 2 || after != 1 || failures != 1 {
		t.Fatalf("hooks before/after/failure = %d/%d/%d, want 2/1/1", before, after, failures)
	}
	if lc.before[0] != 101 || lc.before[1] != 102 {
		t.Errorf("execution ids = %v, want [101 102]", lc.before)
	}
	if lc.after[0] != 101 {
		t.Errorf("after id = %d, want 101", lc.after[0])
	}
	if !errors.Is(lc.failures[0], transportErr) {
		t.Errorf("failure = %v, want %v", lc.failures[0], transportErr)
	}
}

func TestOperator_HookPanicReleasesPermit(t *testing.T) {
	tr := &fakeTransport{}
	lc := &recordingLifecycle{panicAfter: true}
	op := New(tr, WithLifecycle(lc))
	defer op.Close()

	a := mustAction(t, NewActionBuilder().Operation(OpDelete))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			_ = op.Add(a)
			op.Flush()
		}
		op.Wait()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatches stalled after a panicking hook")
	}
	if got := len(tr.Requests()); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestOperator_TransportPanicIsFailure(t *testing.T) {
	tr := TransportFunc(func(ctx context.Context, req Request) (*Response, error) {
		panic("boom")
	})
	lc := &recordingLifecycle{}
	op := New(tr, WithLifecycle(lc))
	defer op.Close()

	_ = op.Add(indexAction(t, "a"))
	op.Flush()
	op.Wait()

	if _, _, failures := lc.counts(); failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestOperator_DispatchTimeout(t *testing.T) {
	tr := TransportFunc(func(ctx context.Context, req Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	lc := &recordingLifecycle{}
	op := New(tr, WithLifecycle(lc), WithDispatchTimeout(10*time.Millisecond))
	defer op.Close()

	_ = op.Add(indexAction(t, "a"))
	op.Flush()
	op.Wait()

	if len(lc.failures) != 1 || !errors.Is(lc.failures[0], context.DeadlineExceeded) {
		t.Errorf("failures = %v, want deadline exceeded", lc.failures)
	}
}

func TestSequence_Monotonic(t *testing.T) {
	s := NewSequence(0)
	var wg sync.WaitGroup
	seen := make([]int64, 100)
	for i := range seen {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = s.Next()
		}(i)
	}
	wg.Wait()

	set := make(map[int64]bool, len(seen))
	for _, id := range seen {
		if id < 1 || id > 100 || set[id] {
			t.Fatalf("unexpected id %d", id)
		}
		set[id] = true
	}
}
