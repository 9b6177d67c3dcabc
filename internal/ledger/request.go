package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Operation is a named GraphQL document.
type Operation struct {
	Name  string
	Query string
}

type requestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// Request sends a single query or mutation and decodes the data field into out.
// out may be nil for mutations whose result is ignored.
func (c *Client) Request(ctx context.Context, op Operation, variables map[string]any, out any) error {
	start := time.Now()
	err := c.doRequest(ctx, op, variables, out)
	c.observe(op.Name, err, time.Since(start))
	return err
}

func (c *Client) doRequest(ctx context.Context, op Operation, variables map[string]any, out any) error {
	payload, err := json.Marshal(requestBody{Query: op.Query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("ledger request",
		"operation", op.Name,
		"request_id", requestID,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransport(ctx, reqCtx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := resp.Status
		if body, readErr := io.ReadAll(resp.Body); readErr == nil && len(body) > 0 {
			text = string(body)
		}
		return &TransportError{StatusCode: resp.StatusCode, Body: text}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.classifyTransport(ctx, reqCtx, op, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", op.Name, err)
	}

	if env.Errors != nil {
		msg := "GraphQL error"
		if len(env.Errors) > 0 && env.Errors[0].Message != "" {
			msg = env.Errors[0].Message
		}
		return &RemoteError{Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", op.Name, err)
	}

	return nil
}

// classifyTransport maps a failed round trip onto the error taxonomy.
func (c *Client) classifyTransport(parent, reqCtx context.Context, op Operation, err error) error {
	// Our own deadline fired while the caller's context is still live.
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return &TimeoutError{Operation: op.Name, After: c.timeout.String()}
	}
	if parent.Err() != nil {
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Operation: op.Name, After: "caller deadline"}
		}
		return fmt.Errorf("%s: %w", op.Name, parent.Err())
	}
	if isUnreachable(err) {
		return &UnreachableError{Endpoint: c.endpoint, Err: err}
	}
	return fmt.Errorf("%s: do request: %w", op.Name, err)
}

// isUnreachable reports connection-level failures (refused, DNS, dial).
func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

func (c *Client) observe(operation string, err error, d time.Duration) {
	kind := Classify(err)
	if kind == KindNone {
		kind = "ok"
	}

	if err != nil {
		c.logger.Warn("ledger request failed",
			"operation", operation,
			"kind", kind,
			"duration", d,
			"err", err,
		)
	}

	if c.observer != nil {
		c.observer.ObserveLedgerRequest(operation, string(kind), d)
	}
}
