// Package transport implements the outbound message path to a remote A2A
// agent: JSON-RPC 2.0 over HTTP POST, with SSE for message/stream. It works
// on raw envelopes rather than SDK client objects so every wire exchange
// stays inspectable by the debug log relay.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/agent-matrix/a2a-validator/internal/protocol"
	"github.com/agent-matrix/a2a-validator/internal/resolver"
)

// MessageClient dispatches JSON-RPC requests to one agent endpoint.
// Implemented by Client; faked in session tests.
type MessageClient interface {
	// Send posts a request and returns the single buffered response.
	Send(ctx context.Context, req protocol.Request) (*protocol.Response, error)
	// Stream posts a request and invokes handle for each SSE event in
	// arrival order. Returning an error from handle aborts the stream.
	Stream(ctx context.Context, req protocol.Request, handle func(protocol.Response) error) error
	// Streaming reports whether the agent's card declared SSE support.
	Streaming() bool
	// Endpoint returns the URL requests are dispatched to.
	Endpoint() string
}

// Client is the direct HTTP implementation of MessageClient.
type Client struct {
	endpoint  string
	streaming bool
	headers   http.Header
	hc        *http.Client
}

// NewClient builds a client for one endpoint. headers are attached to every
// request; they carry whatever the browser asked to forward to the agent.
func NewClient(endpoint string, streaming bool, headers http.Header) *Client {
	return &Client{
		endpoint:  endpoint,
		streaming: streaming,
		headers:   headers,
		hc:        &http.Client{},
	}
}

// NewFromCard builds a client for the endpoint and capabilities a resolved
// card declares.
func NewFromCard(res *resolver.Resolved, headers http.Header) *Client {
	return NewClient(res.Endpoint(), res.Streaming(), headers)
}

// Streaming implements MessageClient.
func (c *Client) Streaming() bool { return c.streaming }

// Endpoint implements MessageClient.
func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) post(ctx context.Context, req protocol.Request, accept string) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, values := range c.headers {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, fmt.Errorf("post %s: status %d", c.endpoint, resp.StatusCode)
	}
	return resp, nil
}

// Send implements MessageClient.
func (c *Client) Send(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	resp, err := c.post(ctx, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var rpcResp protocol.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", c.endpoint, err)
	}
	return &rpcResp, nil
}

// Stream implements MessageClient. The agent answers message/stream with an
// SSE stream whose data lines each hold one JSON-RPC response envelope.
func (c *Client) Stream(ctx context.Context, req protocol.Request, handle func(protocol.Response) error) error {
	resp, err := c.post(ctx, req, "text/event-stream")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream from %s: %w", c.endpoint, err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var rpcResp protocol.Response
		if err := json.Unmarshal([]byte(data), &rpcResp); err != nil {
			return fmt.Errorf("decode stream event from %s: %w", c.endpoint, err)
		}
		if err := handle(rpcResp); err != nil {
			return err
		}
	}
}
