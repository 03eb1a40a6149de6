// Package chat ties the store, the broker, mention resolution, read receipt
// limiting and agent replies into the operations clients call.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/agent"
	"github.com/eldtechnologies/agentrooms/internal/broker"
	"github.com/eldtechnologies/agentrooms/internal/mention"
	"github.com/eldtechnologies/agentrooms/internal/models"
	"github.com/eldtechnologies/agentrooms/internal/ratelimit"
	"github.com/eldtechnologies/agentrooms/internal/store"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInviteCodeTaken = errors.New("invite code already in use")
)

// Options holds the collaborators of a Service.
type Options struct {
	Store     *store.Gateway
	Broker    *broker.Broker
	Resolver  *mention.Resolver
	Limiter   ratelimit.Limiter
	Generator agent.Generator
	Agent     agent.Config
	Logger    zerolog.Logger
}

// Service implements the chat operations. Agent reply chains run in the
// background on the service's own context; Close cancels and waits for them.
type Service struct {
	store     *store.Gateway
	broker    *broker.Broker
	resolver  *mention.Resolver
	limiter   ratelimit.Limiter
	responder *agent.Responder
	logger    zerolog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a service. Resolver and Limiter default to a room-scoped
// resolver and the in-memory read receipt limiter.
func NewService(opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		store:    opts.Store,
		broker:   opts.Broker,
		resolver: opts.Resolver,
		limiter:  opts.Limiter,
		logger:   opts.Logger.With().Str("component", "chat").Logger(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.resolver == nil {
		s.resolver = mention.NewResolver(opts.Store, false)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewMemoryLimiter(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	}
	s.responder = agent.NewResponder(opts.Generator, opts.Store, s, opts.Agent, opts.Logger)
	return s
}

// Close stops in-flight agent chains and waits for them to return.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background agent chain has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Complete runs a single generation outside any room, with the responder's
// timeout.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrInvalidInput
	}
	return s.responder.Generate(ctx, agent.Request{Prompt: prompt})
}

// broadcast encodes data and multicasts it to the room. Failures are logged;
// the store already holds the data.
func (s *Service) broadcast(roomID, eventType string, data any) {
	if s.broker == nil {
		return
	}
	ev, err := models.NewEvent(eventType, data)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to encode event")
		return
	}
	s.broker.Broadcast(roomID, ev)
}
