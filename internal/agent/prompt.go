package agent

import (
	"fmt"
	"strings"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

// PromptInput is everything one agent's prompt is built from.
type PromptInput struct {
	Agent     models.Agent
	History   []models.Message
	Trigger   models.Message
	Previous  []Reply
	NextAgent *models.Agent
}

// Reply is a response already produced for the current trigger.
type Reply struct {
	Agent models.Agent
	Text  string
}

// BuildPrompt renders the prompt for one agent in the chain.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a participant in a group chat.\n", in.Agent.ShortName())
	if in.Agent.Context != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(strings.TrimSpace(in.Agent.Context))
		b.WriteString("\n")
	}
	if in.Agent.Instructions != "" {
		b.WriteString("\nInstructions:\n")
		b.WriteString(strings.TrimSpace(in.Agent.Instructions))
		b.WriteString("\n")
	}

	if len(in.History) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, m := range in.History {
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Text)
		}
	}

	fmt.Fprintf(&b, "\nLatest message from %s:\n%s\n", in.Trigger.Sender, in.Trigger.Text)

	if len(in.Previous) > 0 {
		b.WriteString("\nOther agents have already answered:\n")
		for _, r := range in.Previous {
			fmt.Fprintf(&b, "%s: %s\n", r.Agent.Name, r.Text)
		}
	}

	if in.NextAgent != nil {
		fmt.Fprintf(&b, "\nEnd your answer by addressing @%s, who will respond after you.\n", in.NextAgent.ShortName())
	} else {
		fmt.Fprintf(&b, "\nAnswer %s directly.\n", in.Trigger.Sender)
	}

	return b.String()
}
