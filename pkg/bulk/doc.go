// Package bulk batches write actions for a document index service and
// sends them through its bulk API.
//
// An Operator buffers Actions and turns them into Batches. A batch is
// dispatched when the pending count reaches a threshold, when a
// fixed-delay timer fires, or when Flush is called. A counting permit
// bounds how many batches are in flight at once.
//
// # Usage
//
//	op := bulk.New(transport,
//	    bulk.WithConcurrency(4),
//	    bulk.WithMaxActions(1000),
//	    bulk.WithInterval(3*time.Second),
//	    bulk.WithLifecycle(bulk.NewRequeueLifecycle(logger)),
//	)
//	defer op.Close()
//
//	a, err := bulk.NewActionBuilder().
//	    Operation(bulk.OpIndex).
//	    Index("articles").
//	    ID("42").
//	    Body([]byte(`{"title":"hello"}`)).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	if err := op.Add(a); err != nil {
//	    return err
//	}
//
//	op.Flush()
//	op.Wait()
//
// # Lifecycle
//
// Implement Lifecycle to observe dispatches. Embed NoopLifecycle to pick
// only the hooks you need, and combine several with Chain.
// RequeueLifecycle resubmits actions whose response item failed.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package bulk
