package bulk

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// Batch is an ordered, immutable group of Actions together with its
// NDJSON request payload. Count, payload and size are computed once.
type Batch struct {
	actions []Action
	payload []byte
}

// NewBatch builds a Batch from the given actions.
func NewBatch(actions ...Action) *Batch {
	return NewBatchBuilder().AddActions(actions...).Build()
}

// Actions returns the batch's actions in insertion order.
func (b *Batch) Actions() []Action {
	return append([]Action(nil), b.actions...)
}

// Action returns the i-th action.
func (b *Batch) Action(i int) Action {
	return b.actions[i]
}

// Count returns the number of actions.
func (b *Batch) Count() int {
	return len(b.actions)
}

// Payload returns a copy of the serialized request body.
func (b *Batch) Payload() []byte {
	return append([]byte(nil), b.payload...)
}

// EstimatedSizeBytes returns the payload length in bytes.
func (b *Batch) EstimatedSizeBytes() int {
	return len(b.payload)
}

// BatchBuilder accumulates Actions for a Batch. It is not safe for
// concurrent use; the Operator guards its builder with a mutex.
type BatchBuilder struct {
	actions []Action
}

// NewBatchBuilder returns an empty builder.
func NewBatchBuilder() *BatchBuilder {
	return &BatchBuilder{}
}

// AddAction appends one action.
func (bb *BatchBuilder) AddAction(a Action) *BatchBuilder {
	bb.actions = append(bb.actions, a)
	return bb
}

// AddActions appends actions in order.
func (bb *BatchBuilder) AddActions(actions ...Action) *BatchBuilder {
	bb.actions = append(bb.actions, actions...)
	return bb
}

// Len returns the number of accumulated actions.
func (bb *BatchBuilder) Len() int {
	return len(bb.actions)
}

// Build snapshots the accumulated actions into an immutable Batch.
func (bb *BatchBuilder) Build() *Batch {
	actions := append([]Action(nil), bb.actions...)
	return &Batch{
		actions: actions,
		payload: encodePayload(actions),
	}
}

var payloadPool bytebufferpool.Pool

// encodePayload writes one header line and one body line per action.
func encodePayload(actions []Action) []byte {
	buf := payloadPool.Get()
	defer payloadPool.Put(buf)

	for _, a := range actions {
		writeHeader(buf, a)
		buf.WriteByte('\n')
		if a.body != nil {
			buf.Write(a.body)
		}
		buf.WriteByte('\n')
	}

	return append([]byte(nil), buf.B...)
}

// writeHeader writes {"<op>":{...}} with set fields only, in wire order.
func writeHeader(buf *bytebufferpool.ByteBuffer, a Action) {
	buf.WriteByte('{')
	writeString(buf, a.operation)
	buf.WriteString(":{")

	first := true
	field := func(key string) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeString(buf, key)
		buf.WriteByte(':')
	}

	if a.index != nil {
		field("_index")
		writeString(buf, *a.index)
	}
	if a.typ != nil {
		field("_type")
		writeString(buf, *a.typ)
	}
	if a.id != nil {
		field("_id")
		writeString(buf, *a.id)
	}
	if a.parent != nil {
		field("_parent")
		writeString(buf, *a.parent)
	}
	if a.routing != nil {
		field("_routing")
		writeString(buf, *a.routing)
	}
	if a.version != nil {
		field("_version")
		buf.B = strconv.AppendInt(buf.B, *a.version, 10)
	}
	if a.versionType != nil {
		field("version_type")
		writeString(buf, *a.versionType)
	}
	if a.refresh != nil {
		field("refresh")
		buf.B = strconv.AppendBool(buf.B, *a.refresh)
	}
	if a.waitForActiveShards != nil {
		field("wait_for_active_shards")
		buf.B = strconv.AppendBool(buf.B, *a.waitForActiveShards)
	}

	buf.WriteString("}}")
}

func writeString(buf *bytebufferpool.ByteBuffer, s string) {
	// Marshal of a string never fails.
	b, _ := json.Marshal(s)
	buf.Write(b)
}
