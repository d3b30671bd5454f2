package analyzerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// HTTPTransport is the default Transport: it POSTs the request as JSON
// and decodes either a JSON object or falls back to the raw response
// body as a string, matching spec §6.1 ("the response is either a
// UTF-8 string or a parsed object with an issues array"). Grounded on
// the teacher's internal/server.Client, which posts JSON over a
// net/http.Client and classifies non-200 status into an error.
type HTTPTransport struct {
	Client  *http.Client
	BaseURL string
}

// NewHTTPTransport builds an HTTPTransport posting to baseURL using
// client (or http.DefaultClient if nil).
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{Client: client, BaseURL: baseURL}
}

type wireRequest struct {
	RepoURL        string    `json:"repoUrl"`
	Branch         string    `json:"branch"`
	Messages       []Message `json:"messages"`
	Model          string    `json:"model"`
	Temperature    float64   `json:"temperature"`
	MaxTokens      int       `json:"maxTokens"`
	ResponseFormat string    `json:"responseFormat,omitempty"`
}

func (t *HTTPTransport) Call(ctx context.Context, req Request) (interface{}, error) {
	wire := wireRequest{
		RepoURL:     req.RepoURL,
		Branch:      req.Branch,
		Messages:    req.Messages,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ResponseFormatJS {
		wire.ResponseFormat = "json"
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &TransportError{Category: StatusClientError, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Category: StatusClientError, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TransportError{Category: StatusTimeout, Err: err}
		}
		return nil, &TransportError{Category: StatusUnreachable, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Category: StatusUnreachable, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &TransportError{Category: StatusServerError, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))}
	case resp.StatusCode >= 400:
		return nil, &TransportError{Category: StatusClientError, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))}
	case resp.StatusCode != http.StatusOK:
		return nil, &TransportError{Category: StatusServerError, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(respBody, &obj); err == nil {
		return obj, nil
	}
	return string(respBody), nil
}
