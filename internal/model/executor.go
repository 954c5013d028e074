package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrTimeout is returned when a bundle does not answer in time.
var ErrTimeout = errors.New("model execution timeout")

// Executor runs model bundles with a timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor with the given timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		timeout: timeout,
	}
}

// Execute runs bundle with req on stdin and parses its stdout as a Response.
// A response with success=false is returned as an error.
func (e *Executor) Execute(ctx context.Context, bundle *Bundle, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bundle.Executable)
	cmd.Dir = bundle.Path

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, bundle.Manifest.Name, e.timeout)
	}
	if err != nil {
		if s := stderr.String(); s != "" {
			return nil, fmt.Errorf("model %s failed: %w, stderr: %s", bundle.Manifest.Name, err, s)
		}
		return nil, fmt.Errorf("model %s failed: %w", bundle.Manifest.Name, err)
	}

	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w, stdout: %s", err, stdout.String())
	}
	if !response.Success {
		msg := response.Error
		if msg == "" {
			msg = "unsuccessful response"
		}
		return nil, fmt.Errorf("model %s: %s", bundle.Manifest.Name, msg)
	}

	return &response, nil
}
