// Package httpjson sends JSON requests to model provider APIs.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-ports/comicshelf/internal/redaction"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Snippet string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Snippet)
}

// Do executes an HTTP request, marshalling body as JSON and unmarshalling the
// response into out. Pass nil body for GET requests and nil out to discard the
// response. Non-2xx responses return a *StatusError carrying the first 256
// bytes of the body with credentials redacted.
func Do(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpjson marshal: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("httpjson new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req) // #nosec G704 -- URL is the user-configured provider endpoint
	if err != nil {
		return fmt.Errorf("httpjson request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		secrets := make([]string, 0, len(headers))
		for _, v := range headers {
			secrets = append(secrets, strings.TrimPrefix(v, "Bearer "))
		}
		return &StatusError{
			Code:    resp.StatusCode,
			Snippet: redaction.Redact(string(bytes.TrimSpace(snippet)), secrets...),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("httpjson decode: %w", err)
		}
	}
	return nil
}

// Bearer returns an Authorization header map for key, or nil when key is empty.
func Bearer(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + key}
}
