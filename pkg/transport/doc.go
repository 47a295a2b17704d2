// Package transport delivers bulk payloads to an Elasticsearch-compatible
// _bulk endpoint over HTTP.
//
// HTTPTransport implements bulk.Transport:
//
//	t := transport.NewHTTPTransport(&http.Client{Timeout: 30 * time.Second}, transport.Config{
//	    BaseURL: "https://search.example.com:9200",
//	    APIKey:  "base64-api-key",
//	}, logger)
//
//	op := bulk.New(t, bulk.WithEndpoint("/articles/_bulk"))
//
// Non-2xx replies are returned as *StatusError. Successful replies are
// parsed into a bulk.Response, per-item failures included.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package transport
