package bulk

import (
	"bytes"
	"encoding/json"
)

// Standard bulk operations. Any non-empty operation name is accepted.
const (
	OpIndex  = "index"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Action is a single write intent against the index service.
// Unset optional fields are nil and are left out of the request header.
// An Action is immutable once built and safe to share between goroutines.
type Action struct {
	operation string

	index       *string
	typ         *string
	id          *string
	parent      *string
	routing     *string
	version     *int64
	versionType *string

	refresh             *bool
	waitForActiveShards *bool

	body []byte
}

// Operation returns the action's operation name.
func (a Action) Operation() string { return a.operation }

// Index returns the target index.
func (a Action) Index() (string, bool) { return derefString(a.index) }

// Type returns the target document type.
func (a Action) Type() (string, bool) { return derefString(a.typ) }

// ID returns the document id.
func (a Action) ID() (string, bool) { return derefString(a.id) }

// Parent returns the parent document id.
func (a Action) Parent() (string, bool) { return derefString(a.parent) }

// Routing returns the routing key.
func (a Action) Routing() (string, bool) { return derefString(a.routing) }

// VersionType returns the version type.
func (a Action) VersionType() (string, bool) { return derefString(a.versionType) }

// Version returns the expected document version.
func (a Action) Version() (int64, bool) {
	if a.version == nil {
		return 0, false
	}
	return *a.version, true
}

// Refresh returns the refresh directive.
func (a Action) Refresh() (bool, bool) { return derefBool(a.refresh) }

// WaitForActiveShards returns the wait_for_active_shards directive.
func (a Action) WaitForActiveShards() (bool, bool) { return derefBool(a.waitForActiveShards) }

// Body returns a copy of the document body, or nil if there is none.
func (a Action) Body() []byte {
	if a.body == nil {
		return nil
	}
	return append([]byte(nil), a.body...)
}

// HasBody reports whether the action carries a body.
func (a Action) HasBody() bool { return a.body != nil }

func derefString(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}

func derefBool(p *bool) (bool, bool) {
	if p == nil {
		return false, false
	}
	return *p, true
}

// ActionBuilder accumulates Action fields. Build validates them.
type ActionBuilder struct {
	a       Action
	bodyErr error
}

// NewActionBuilder returns an empty builder.
func NewActionBuilder() *ActionBuilder {
	return &ActionBuilder{}
}

// Operation sets the operation name.
func (b *ActionBuilder) Operation(op string) *ActionBuilder {
	b.a.operation = op
	return b
}

// Index sets _index.
func (b *ActionBuilder) Index(index string) *ActionBuilder {
	b.a.index = &index
	return b
}

// Type sets _type.
func (b *ActionBuilder) Type(typ string) *ActionBuilder {
	b.a.typ = &typ
	return b
}

// ID sets _id.
func (b *ActionBuilder) ID(id string) *ActionBuilder {
	b.a.id = &id
	return b
}

// Parent sets _parent.
func (b *ActionBuilder) Parent(parent string) *ActionBuilder {
	b.a.parent = &parent
	return b
}

// Routing sets _routing.
func (b *ActionBuilder) Routing(routing string) *ActionBuilder {
	b.a.routing = &routing
	return b
}

// Version sets _version.
func (b *ActionBuilder) Version(version int64) *ActionBuilder {
	b.a.version = &version
	return b
}

// VersionType sets version_type.
func (b *ActionBuilder) VersionType(versionType string) *ActionBuilder {
	b.a.versionType = &versionType
	return b
}

// Refresh sets the refresh directive.
func (b *ActionBuilder) Refresh(refresh bool) *ActionBuilder {
	b.a.refresh = &refresh
	return b
}

// WaitForActiveShards sets the wait_for_active_shards directive.
func (b *ActionBuilder) WaitForActiveShards(wait bool) *ActionBuilder {
	b.a.waitForActiveShards = &wait
	return b
}

// Body sets the document body. The bytes are copied. A body that spans
// several lines is compacted so it fits on one payload line; Build fails
// if such a body is not valid JSON.
func (b *ActionBuilder) Body(body []byte) *ActionBuilder {
	b.bodyErr = nil
	if body == nil {
		b.a.body = nil
		return b
	}
	if bytes.ContainsAny(body, "\r\n") {
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err != nil {
			b.a.body = nil
			b.bodyErr = &ValidationError{Field: "body", Reason: "multi-line body is not valid JSON"}
			return b
		}
		b.a.body = buf.Bytes()
		return b
	}
	b.a.body = append([]byte(nil), body...)
	return b
}

// Build returns the Action, or a *ValidationError if no operation was set
// or the body could not be put on a single line.
func (b *ActionBuilder) Build() (Action, error) {
	if b.a.operation == "" {
		return Action{}, &ValidationError{Field: "operation"}
	}
	if b.bodyErr != nil {
		return Action{}, b.bodyErr
	}
	return b.a, nil
}

// ActionSpec is the JSON form of an Action. Absent or null fields stay unset.
type ActionSpec struct {
	Operation           string          `json:"operation"`
	Index               *string         `json:"index,omitempty"`
	Type                *string         `json:"type,omitempty"`
	ID                  *string         `json:"id,omitempty"`
	Parent              *string         `json:"parent,omitempty"`
	Routing             *string         `json:"routing,omitempty"`
	Version             *int64          `json:"version,omitempty"`
	VersionType         *string         `json:"version_type,omitempty"`
	Refresh             *bool           `json:"refresh,omitempty"`
	WaitForActiveShards *bool           `json:"wait_for_active_shards,omitempty"`
	Body                json.RawMessage `json:"body,omitempty"`
}

// Build converts s into an Action through ActionBuilder.
func (s ActionSpec) Build() (Action, error) {
	b := NewActionBuilder().Operation(s.Operation)
	if s.Index != nil {
		b.Index(*s.Index)
	}
	if s.Type != nil {
		b.Type(*s.Type)
	}
	if s.ID != nil {
		b.ID(*s.ID)
	}
	if s.Parent != nil {
		b.Parent(*s.Parent)
	}
	if s.Routing != nil {
		b.Routing(*s.Routing)
	}
	if s.Version != nil {
		b.Version(*s.Version)
	}
	if s.VersionType != nil {
		b.VersionType(*s.VersionType)
	}
	if s.Refresh != nil {
		b.Refresh(*s.Refresh)
	}
	if s.WaitForActiveShards != nil {
		b.WaitForActiveShards(*s.WaitForActiveShards)
	}
	if len(s.Body) > 0 && string(s.Body) != "null" {
		b.Body(s.Body)
	}
	return b.Build()
}
