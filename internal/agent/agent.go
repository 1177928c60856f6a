// Package agent calls the remote design agent. The agent is a black box:
// it takes a prompt and an agent id and returns arbitrary JSON.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultAgentID is the orchestrator agent that produces system designs.
const DefaultAgentID = "69858585b90162af337b1e37"

// Result is the agent's reply. Response is untrusted and must be normalized.
type Result struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Invoker sends a prompt to an agent.
type Invoker interface {
	Invoke(ctx context.Context, prompt, agentID string) (Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt, agentID string) (Result, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, prompt, agentID string) (Result, error) {
	return f(ctx, prompt, agentID)
}

// TransportError is a failed agent call: the request did not complete, the
// endpoint answered with a non-2xx status, or the agent reported failure.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("agent: transport failure: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("agent: transport failure: status %d: %s", e.StatusCode, e.Message)
	default:
		return "agent: transport failure: " + e.Message
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Call invokes inv and converts an unsuccessful Result into a TransportError,
// so callers only see a response when the agent reported success.
func Call(ctx context.Context, inv Invoker, prompt, agentID string) (json.RawMessage, error) {
	res, err := inv.Invoke(ctx, prompt, agentID)
	if err != nil {
		if IsTransport(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &TransportError{Err: err}
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "agent reported failure"
		}
		return nil, &TransportError{Message: msg}
	}
	return res.Response, nil
}
