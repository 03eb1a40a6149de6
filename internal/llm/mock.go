package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/eldtechnologies/agentrooms/internal/agent"
)

// Mock is a deterministic generator for development and tests. It answers
// with the last line of the prompt that is not an instruction.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Generate(ctx context.Context, req agent.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := req.Agent.ShortName()
	if name == "" {
		name = "assistant"
	}
	return fmt.Sprintf("[%s] I read: %q", name, lastLine(req.Prompt)), nil
}

func lastLine(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "End your answer") || strings.HasPrefix(line, "Answer ") {
			continue
		}
		return line
	}
	return ""
}
