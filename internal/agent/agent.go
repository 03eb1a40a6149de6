// Package agent produces replies for agents mentioned in a room message.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eldtechnologies/agentrooms/internal/metrics"
	"github.com/eldtechnologies/agentrooms/internal/models"
)

var (
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGenerationFailed  = errors.New("generation failed")
)

// Request is one text generation call.
type Request struct {
	Prompt string
	Agent  models.Agent
}

// Generator produces text for a prompt. Implementations live in internal/llm.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// DefaultTimeout bounds a single generation.
const DefaultTimeout = 30 * time.Second

type result struct {
	text string
	err  error
}

// GenerateWithTimeout runs gen with a hard deadline. The generator gets a
// context that is cancelled at the deadline, but the call returns at the
// deadline even if the generator ignores it. Errors are wrapped in
// ErrGenerationTimeout or ErrGenerationFailed.
func GenerateWithTimeout(ctx context.Context, gen Generator, req Request, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		text, err := gen.Generate(ctx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		metrics.AgentGenerationDuration.Observe(time.Since(start).Seconds())
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				metrics.AgentGenerations.WithLabelValues("timeout").Inc()
				return "", fmt.Errorf("%w: %v", ErrGenerationTimeout, res.err)
			}
			metrics.AgentGenerations.WithLabelValues("error").Inc()
			return "", fmt.Errorf("%w: %v", ErrGenerationFailed, res.err)
		}
		if res.text == "" {
			metrics.AgentGenerations.WithLabelValues("error").Inc()
			return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
		}
		metrics.AgentGenerations.WithLabelValues("ok").Inc()
		return res.text, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.AgentGenerations.WithLabelValues("timeout").Inc()
			return "", fmt.Errorf("%w after %s", ErrGenerationTimeout, timeout)
		}
		metrics.AgentGenerations.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
	}
}
