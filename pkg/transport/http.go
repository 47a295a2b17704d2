package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/bft-labs/bulkship/pkg/bulk"
	"github.com/bft-labs/bulkship/pkg/log"
)

// Config addresses and authenticates against the index service.
type Config struct {
	// BaseURL is the service root, for example https://localhost:9200.
	BaseURL string

	// APIKey is sent as "Authorization: ApiKey <key>" when set.
	APIKey string

	// Username and Password enable basic auth when Username is set and
	// APIKey is empty.
	Username string
	Password string

	// Headers are added to every request.
	Headers map[string]string
}

// HTTPTransport implements bulk.Transport over HTTP.
type HTTPTransport struct {
	client HTTPClient
	cfg    Config
	logger log.Logger
}

// NewHTTPTransport creates a transport. A nil logger discards output.
func NewHTTPTransport(client HTTPClient, cfg Config, logger log.Logger) *HTTPTransport {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPTransport{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Bulk posts the payload and parses the bulk response.
func (t *HTTPTransport) Bulk(ctx context.Context, req bulk.Request) (*bulk.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url(req.Endpoint), bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = bulk.ContentType
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "bulkship/"+Version+" ("+runtime.GOOS+"/"+runtime.GOARCH+")")
	if req.Operator != "" {
		httpReq.Header.Set("X-Opaque-Id", req.Operator+"-"+strconv.FormatInt(req.ExecutionID, 10))
	}
	for k, v := range t.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	switch {
	case t.cfg.APIKey != "":
		httpReq.Header.Set("Authorization", "ApiKey "+t.cfg.APIKey)
	case t.cfg.Username != "":
		httpReq.SetBasicAuth(t.cfg.Username, t.cfg.Password)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	parsed, err := bulk.ParseResponse(body)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("bulk request completed",
		log.Int64("execution_id", req.ExecutionID),
		log.Int("status", resp.StatusCode),
		log.Int("payload_bytes", len(req.Payload)),
		log.Int64("took_ms", parsed.Took),
	)
	return parsed, nil
}

func (t *HTTPTransport) url(endpoint string) string {
	if endpoint == "" {
		endpoint = bulk.DefaultEndpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return t.cfg.BaseURL + endpoint
}
