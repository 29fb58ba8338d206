// Package llmtest provides a scripted llm.Client for tests. Each call to
// Complete pops the next queued response, so tests can drive multi-turn
// tool-call conversations deterministically.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnemo-ai/mnemo/llm"
)

// Client replays queued responses in order and records every request.
type Client struct {
	mu        sync.Mutex
	responses []*llm.CompletionResponse
	err       error

	// Requests holds a copy of every CompletionRequest received.
	Requests []*llm.CompletionRequest
}

var _ llm.Client = (*Client)(nil)

// New creates a scripted client with the given responses queued.
func New(responses ...*llm.CompletionResponse) *Client {
	return &Client{responses: responses}
}

// Queue appends a response to the script.
func (c *Client) Queue(resp *llm.CompletionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, resp)
}

// QueueText is shorthand for queueing a plain-text answer.
func (c *Client) QueueText(text string) {
	c.Queue(&llm.CompletionResponse{Content: text, FinishReason: "stop"})
}

// Fail makes every subsequent Complete call return err.
func (c *Client) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Calls returns how many completions have been requested.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// Complete pops the next scripted response.
func (c *Client) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("llmtest: no scripted response for request %d", len(c.Requests))
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}
