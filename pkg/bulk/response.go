package bulk

import (
	"encoding/json"
	"fmt"
)

// Response is the parsed reply to one bulk request.
type Response struct {
	Took   int64          `json:"took"`
	Errors bool           `json:"errors"`
	Items  []ResponseItem `json:"items"`
}

// FailedCount returns the number of items with a failure status.
func (r *Response) FailedCount() int {
	n := 0
	for _, it := range r.Items {
		if it.Failed() {
			n++
		}
	}
	return n
}

// ResponseItem is the outcome of one action, at the same position as the
// action in the request.
type ResponseItem struct {
	Operation string     `json:"-"`
	Index     string     `json:"_index,omitempty"`
	Type      string     `json:"_type,omitempty"`
	ID        string     `json:"_id,omitempty"`
	Version   int64      `json:"_version,omitempty"`
	Result    string     `json:"result,omitempty"`
	Status    int        `json:"status"`
	Error     *ItemError `json:"error,omitempty"`
}

// Failed reports whether the item's status is 400 or above.
func (it ResponseItem) Failed() bool {
	return it.Status >= 400
}

// UnmarshalJSON decodes the {"<op>":{...}} envelope of a response item.
func (it *ResponseItem) UnmarshalJSON(data []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if len(envelope) != 1 {
		return fmt.Errorf("bulk: response item has %d operation keys", len(envelope))
	}

	type plain ResponseItem
	for op, raw := range envelope {
		var p plain
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("bulk: decode %s item: %w", op, err)
		}
		*it = ResponseItem(p)
		it.Operation = op
	}
	return nil
}

// MarshalJSON encodes the item in its {"<op>":{...}} envelope.
func (it ResponseItem) MarshalJSON() ([]byte, error) {
	type plain ResponseItem
	return json.Marshal(map[string]plain{it.Operation: plain(it)})
}

// ItemError describes why an item failed.
type ItemError struct {
	Type     string     `json:"type,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	CausedBy *ItemError `json:"caused_by,omitempty"`
}

// UnmarshalJSON also accepts the plain-string form older servers send.
func (e *ItemError) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Reason)
	}
	type plain ItemError
	return json.Unmarshal(data, (*plain)(e))
}

// Error returns the type and reason.
func (e *ItemError) Error() string {
	if e.Type == "" {
		return e.Reason
	}
	return e.Type + ": " + e.Reason
}

// ParseResponse decodes a bulk response body.
func ParseResponse(body []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("bulk: decode response: %w", err)
	}
	return &r, nil
}
