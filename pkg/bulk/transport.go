package bulk

import "context"

// ContentType is the media type of a bulk payload.
const ContentType = "application/x-ndjson"

// DefaultEndpoint is the request path used when none is configured.
const DefaultEndpoint = "/_bulk"

// Request is one bulk round trip handed to a Transport.
type Request struct {
	// Operator is the name of the dispatching Operator.
	Operator    string
	ExecutionID int64
	Endpoint    string
	ContentType string
	// Payload is shared with the Batch and must not be modified.
	Payload []byte
}

// Transport delivers bulk payloads to the index service.
//
// A non-nil error means the request as a whole failed and is reported to
// Lifecycle.AfterDispatchFailure. Per-item failures are carried in the
// Response and are not errors.
type Transport interface {
	Bulk(ctx context.Context, req Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) (*Response, error)

// Bulk calls f(ctx, req).
func (f TransportFunc) Bulk(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
