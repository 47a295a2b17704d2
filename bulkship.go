// Package bulkship batches document actions and ships them to a bulk
// indexing API.
//
// Example usage:
//
//	op := bulkship.NewHTTPOperator(bulkship.HTTPConfig{BaseURL: "http://localhost:9200"},
//	    bulkship.WithMaxActions(500),
//	    bulkship.WithInterval(5*time.Second),
//	)
//	defer op.Close()
//
//	a, err := bulkship.NewActionBuilder().Operation(bulkship.OpIndex).Index("logs").Body(doc).Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := op.Add(a); err != nil {
//	    log.Fatal(err)
//	}
//	op.Flush()
//	op.Wait()
package bulkship

import (
	"net/http"

	"github.com/bft-labs/bulkship/pkg/bulk"
	"github.com/bft-labs/bulkship/pkg/transport"
)

// Operator accumulates actions and dispatches them as bulk requests.
type Operator = bulk.Operator

// Action is one bulk operation.
type Action = bulk.Action

// Batch is an immutable group of actions with its NDJSON payload.
type Batch = bulk.Batch

// Response is a parsed bulk response.
type Response = bulk.Response

// Lifecycle observes dispatches.
type Lifecycle = bulk.Lifecycle

// Option configures an Operator.
type Option = bulk.Option

// HTTPConfig addresses and authenticates against the index service.
type HTTPConfig = transport.Config

// Operations.
const (
	OpIndex  = bulk.OpIndex
	OpCreate = bulk.OpCreate
	OpUpdate = bulk.OpUpdate
	OpDelete = bulk.OpDelete
)

// Operator options.
var (
	WithName            = bulk.WithName
	WithConcurrency     = bulk.WithConcurrency
	WithInterval        = bulk.WithInterval
	WithMaxActions      = bulk.WithMaxActions
	WithEndpoint        = bulk.WithEndpoint
	WithDispatchTimeout = bulk.WithDispatchTimeout
	WithLifecycle       = bulk.WithLifecycle
	WithLogger          = bulk.WithLogger
)

// NewActionBuilder starts a new Action.
func NewActionBuilder() *bulk.ActionBuilder {
	return bulk.NewActionBuilder()
}

// New creates an Operator over any transport.
func New(t bulk.Transport, opts ...Option) *Operator {
	return bulk.New(t, opts...)
}

// NewHTTPOperator creates an Operator that posts to cfg.BaseURL with
// http.DefaultClient.
func NewHTTPOperator(cfg HTTPConfig, opts ...Option) *Operator {
	return bulk.New(transport.NewHTTPTransport(http.DefaultClient, cfg, nil), opts...)
}
