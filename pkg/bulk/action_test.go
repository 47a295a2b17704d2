package bulk

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestActionBuilder_Build(t *testing.T) {
	tests := []struct {
		name    string
		builder *ActionBuilder
		wantErr bool
	}{
		{
			name:    "operation only",
			builder: NewActionBuilder().Operation(OpDelete),
		},
		{
			name: "all fields",
			builder: NewActionBuilder().
				Operation(OpIndex).
				Index("i").Type("t").ID("1").Parent("p").Routing("r").
				Version(3).VersionType("external").
				Refresh(false).WaitForActiveShards(true).
				Body([]byte(`{}`)),
		},
		{
			name:    "missing operation",
			builder: NewActionBuilder().Index("i").ID("1"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("Build() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestAction_UnsetFieldsStayUnset(t *testing.T) {
	a, err := NewActionBuilder().Operation(OpIndex).Refresh(false).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if _, ok := a.Index(); ok {
		t.Error("Index() ok = true, want false")
	}
	if _, ok := a.Version(); ok {
		t.Error("Version() ok = true, want false")
	}
	if _, ok := a.WaitForActiveShards(); ok {
		t.Error("WaitForActiveShards() ok = true, want false")
	}
	if v, ok := a.Refresh(); !ok || v {
		t.Errorf("Refresh() = %v, %v, want false, true", v, ok)
	}
	if a.HasBody() {
		t.Error("HasBody() = true, want false")
	}
}

func TestAction_BodyIsCopied(t *testing.T) {
	body := []byte(`{"a":1}`)
	a, err := NewActionBuilder().Operation(OpIndex).Body(body).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	body[2] = 'b'
	if got := string(a.Body()); got != `{"a":1}` {
		t.Errorf("Body() = %s, want original bytes", got)
	}

	out := a.Body()
	out[2] = 'c'
	if got := string(a.Body()); got != `{"a":1}` {
		t.Errorf("Body() = %s after caller mutation, want original bytes", got)
	}
}

func TestActionSpec_Build(t *testing.T) {
	line := `{"operation":"update","index":"users","id":"7","version":null,"refresh":true,"body":{"doc":{"n":1}}}`

	var spec ActionSpec
	if err := json.Unmarshal([]byte(line), &spec); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	a, err := spec.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if a.Operation() != OpUpdate {
		t.Errorf("Operation() = %v, want update", a.Operation())
	}
	if v, ok := a.ID(); !ok || v != "7" {
		t.Errorf("ID() = %v, %v, want 7, true", v, ok)
	}
	if _, ok := a.Version(); ok {
		t.Error("Version() ok = true for null, want false")
	}
	if got := string(a.Body()); got != `{"doc":{"n":1}}` {
		t.Errorf("Body() = %s", got)
	}
}

func TestActionSpec_BuildMissingOperation(t *testing.T) {
	var spec ActionSpec
	if err := json.Unmarshal([]byte(`{"index":"users"}`), &spec); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	_, err := spec.Build()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Build() error = %v, want *ValidationError", err)
	}
	if verr.Field != "operation" {
		t.Errorf("Field = %v, want operation", verr.Field)
	}
}

func TestActionBuilder_MultiLineBody(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantBody  string
		wantField string
	}{
		{
			name:     "pretty printed json is compacted",
			body:     "{\n  \"msg\": \"a b\",\r\n  \"n\": [1, 2]\n}\n",
			wantBody: `{"msg":"a b","n":[1,2]}`,
		},
		{
			name:     "single line kept as is",
			body:     `{ "msg": "x" }`,
			wantBody: `{ "msg": "x" }`,
		},
		{
			name:      "multi-line non json rejected",
			body:      "line one\nline two",
			wantField: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewActionBuilder().Operation(OpIndex).Body([]byte(tt.body)).Build()
			if tt.wantField != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Build() error = %v, want *ValidationError", err)
				}
				if verr.Field != tt.wantField {
					t.Errorf("Field = %v, want %v", verr.Field, tt.wantField)
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("errors.Is(err, ErrValidation) = false")
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got := string(a.Body()); got != tt.wantBody {
				t.Errorf("Body() = %q, want %q", got, tt.wantBody)
			}

			payload := NewBatch(a).Payload()
			if got := bytes.Count(payload, []byte("\n")); got != 2 {
				t.Errorf("payload lines = %d, want 2", got)
			}
		})
	}
}

func TestActionBuilder_BodyResetClearsError(t *testing.T) {
	b := NewActionBuilder().Operation(OpIndex).Body([]byte("bad\nbody"))
	if _, err := b.Body([]byte(`{"ok":true}`)).Build(); err != nil {
		t.Errorf("Build() after replacing body error = %v", err)
	}
}
