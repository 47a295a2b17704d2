package bulk

import (
	"testing"
)

func itemsWithStatus(op string, statuses ...int) []ResponseItem {
	items := make([]ResponseItem, len(statuses))
	for i, s := range statuses {
		items[i] = ResponseItem{Operation: op, Status: s}
	}
	return items
}

func TestRequeueLifecycle_AfterDispatch(t *testing.T) {
	tests := []struct {
		name         string
		resp         *Response
		wantPending  int
		wantRequeued []string
	}{
		{
			name:        "no errors",
			resp:        &Response{Errors: false, Items: itemsWithStatus(OpIndex, 201, 201, 201)},
			wantPending: 0,
		},
		{
			name:         "failed item is requeued",
			resp:         &Response{Errors: true, Items: itemsWithStatus(OpIndex, 200, 409, 200)},
			wantPending:  1,
			wantRequeued: []string{"a1"},
		},
		{
			name:         "all failed",
			resp:         &Response{Errors: true, Items: itemsWithStatus(OpIndex, 500, 429, 400)},
			wantPending:  3,
			wantRequeued: []string{"a0", "a1", "a2"},
		},
		{
			name:        "errors flag without failed items",
			resp:        &Response{Errors: true, Items: itemsWithStatus(OpIndex, 200, 201, 399)},
			wantPending: 0,
		},
		{
			name:        "item count mismatch requeues nothing",
			resp:        &Response{Errors: true, Items: itemsWithStatus(OpIndex, 409, 409)},
			wantPending: 0,
		},
		{
			name: "operation mismatch is skipped",
			resp: &Response{Errors: true, Items: []ResponseItem{
				{Operation: OpIndex, Status: 409},
				{Operation: OpDelete, Status: 409},
				{Operation: OpIndex, Status: 200},
			}},
			wantPending:  1,
			wantRequeued: []string{"a0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{
				respond: func(req Request, call int) (*Response, error) {
					if call == 0 {
						return tt.resp, nil
					}
					return &Response{}, nil
				},
			}
			op := New(tr, WithLifecycle(NewRequeueLifecycle(nil)))
			defer op.Close()

			if err := op.Add(indexAction(t, "a0"), indexAction(t, "a1"), indexAction(t, "a2")); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
			op.Flush()
			op.Wait()

			if got := op.Pending(); got != tt.wantPending {
				t.Fatalf("Pending() = %d, want %d", got, tt.wantPending)
			}

			op.Flush()
			op.Wait()

			reqs := tr.Requests()
			if tt.wantPending == 0 {
				if len(reqs) != 1 {
					t.Errorf("requests = %d, want 1", len(reqs))
				}
				return
			}
			if len(reqs) != 2 {
				t.Fatalf("requests = %d, want 2", len(reqs))
			}

			want := NewBatchBuilder()
			for _, id := range tt.wantRequeued {
				want.AddAction(indexAction(t, id))
			}
			if got := string(reqs[1].Payload); got != string(want.Build().Payload()) {
				t.Errorf("requeued payload = %q, want %q", got, want.Build().Payload())
			}
		})
	}
}

func TestRequeueLifecycle_ClosedOperator(t *testing.T) {
	gate := make(chan struct{})
	tr := &fakeTransport{
		gate: gate,
		respond: func(req Request, call int) (*Response, error) {
			return &Response{Errors: true, Items: itemsWithStatus(OpIndex, 503)}, nil
		},
	}
	op := New(tr, WithLifecycle(&RequeueLifecycle{}))

	if err := op.Add(indexAction(t, "a0")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	op.Flush()
	op.Close()
	close(gate)
	op.Wait()

	if got := op.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestRequeueLifecycle_ThresholdAtConcurrencyOne(t *testing.T) {
	tr := &fakeTransport{
		respond: func(req Request, call int) (*Response, error) {
			if call == 0 {
				return &Response{Errors: true, Items: itemsWithStatus(OpIndex, 429, 429)}, nil
			}
			return &Response{}, nil
		},
	}
	op := New(tr, WithMaxActions(2), WithConcurrency(1), WithLifecycle(NewRequeueLifecycle(nil)))
	defer op.Close()

	if err := op.Add(indexAction(t, "a0"), indexAction(t, "a1")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	op.Wait()

	if got := len(tr.Requests()); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
	if got := tr.TotalActions(); got != 4 {
		t.Errorf("actions transported = %d, want 4", got)
	}
}
