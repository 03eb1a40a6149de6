package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

// Defaults for Config.
const (
	DefaultHistorySize   = 5
	DefaultResponseDelay = time.Second
)

// Config tunes the responder.
type Config struct {
	HistorySize   int
	Timeout       time.Duration
	ResponseDelay time.Duration
}

// History loads a room's latest messages.
type History interface {
	GetRecentMessages(ctx context.Context, roomID string, n int) ([]models.Message, error)
}

// Publisher persists an agent reply and delivers it to the room. It assigns
// the message id and timestamp.
type Publisher interface {
	PublishAgentMessage(ctx context.Context, msg *models.Message) error
}

// Responder runs the reply chain for the agents mentioned in one message.
type Responder struct {
	gen       Generator
	history   History
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
}

// NewResponder creates a responder. Zero config fields take the defaults.
func NewResponder(gen Generator, history History, publisher Publisher, cfg Config, logger zerolog.Logger) *Responder {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	// A negative delay disables the pause between replies.
	if cfg.ResponseDelay == 0 {
		cfg.ResponseDelay = DefaultResponseDelay
	} else if cfg.ResponseDelay < 0 {
		cfg.ResponseDelay = 0
	}
	return &Responder{
		gen:       gen,
		history:   history,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "agent").Logger(),
	}
}

// Generate runs a single generation with the configured timeout.
func (r *Responder) Generate(ctx context.Context, req Request) (string, error) {
	return GenerateWithTimeout(ctx, r.gen, req, r.cfg.Timeout)
}

// Respond answers trigger once per agent, in order. Each agent sees the
// replies of the agents before it and is asked to address the next one.
// An agent that fails is logged and skipped. Cancelling ctx stops the chain,
// including a pending delay between replies. It returns the published replies.
func (r *Responder) Respond(ctx context.Context, trigger models.Message, agents []models.Agent) []models.Message {
	if len(agents) == 0 {
		return nil
	}

	log := r.logger.With().
		Str("room", trigger.RoomID).
		Int64("trigger", trigger.ID).
		Int("agents", len(agents)).
		Logger()

	history, err := r.loadHistory(ctx, trigger)
	if err != nil {
		log.Error().Err(err).Msg("failed to load history")
		history = nil
	}

	var (
		previous  []Reply
		published []models.Message
	)
	for i, ag := range agents {
		if i > 0 && r.cfg.ResponseDelay > 0 {
			if !sleep(ctx, r.cfg.ResponseDelay) {
				log.Info().Msg("responder chain cancelled")
				return published
			}
		}
		if ctx.Err() != nil {
			return published
		}

		var next *models.Agent
		if i+1 < len(agents) {
			next = &agents[i+1]
		}

		prompt := BuildPrompt(PromptInput{
			Agent:     ag,
			History:   history,
			Trigger:   trigger,
			Previous:  previous,
			NextAgent: next,
		})

		text, err := r.Generate(ctx, Request{Prompt: prompt, Agent: ag})
		if err != nil {
			log.Warn().Err(err).Str("agent", ag.ID).Msg("agent generation failed, skipping")
			continue
		}

		msg := &models.Message{
			Text:     text,
			Sender:   models.AgentName(ag.Name),
			SenderID: ag.ID,
			RoomID:   trigger.RoomID,
			ReadBy:   []string{ag.ID},
			Mentions: replyMentions(trigger, next),
		}
		if err := r.publisher.PublishAgentMessage(ctx, msg); err != nil {
			log.Error().Err(err).Str("agent", ag.ID).Msg("failed to publish agent reply")
			continue
		}

		previous = append(previous, Reply{Agent: ag, Text: text})
		published = append(published, *msg)
	}
	return published
}

// replyMentions points a reply at the next agent in the chain, or back at the
// author of the trigger when the chain ends.
func replyMentions(trigger models.Message, next *models.Agent) []string {
	if next != nil {
		return []string{next.ID}
	}
	if trigger.SenderID != "" {
		return []string{trigger.SenderID}
	}
	return []string{}
}

func (r *Responder) loadHistory(ctx context.Context, trigger models.Message) ([]models.Message, error) {
	recent, err := r.history.GetRecentMessages(ctx, trigger.RoomID, r.cfg.HistorySize+1)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}

	history := make([]models.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID == trigger.ID {
			continue
		}
		history = append(history, m)
	}
	if len(history) > r.cfg.HistorySize {
		history = history[len(history)-r.cfg.HistorySize:]
	}
	return history, nil
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
