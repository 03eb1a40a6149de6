package roomsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/models"
	"github.com/eldtechnologies/agentrooms/internal/transport"
)

// Defaults for Options.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultReadDelay    = time.Second
)

// Fetcher loads the full message list of a room.
type Fetcher interface {
	FetchMessages(ctx context.Context, roomID string) ([]models.Message, error)
}

// Transport is the push connection a subscription rides on.
// *transport.Client implements it.
type Transport interface {
	State() transport.State
	OnState(fn func(transport.State)) func()
	Subscribe(roomID, eventType string, h transport.Handler)
	Unsubscribe(roomID string)
	Join(ctx context.Context, roomID string) error
	Leave(ctx context.Context, roomID string) error
	Emit(ctx context.Context, eventType string, data any) error
}

// Options configures a Subscription.
type Options struct {
	RoomID   string
	UserID   string
	UserName string

	PollInterval time.Duration
	ReadDelay    time.Duration

	// OnChange, when set, receives a snapshot after every change. It is called
	// from the subscription goroutine and must not block.
	OnChange func([]models.Message)

	Logger zerolog.Logger
}

// Subscription keeps a Timeline for one room in sync and reports what the
// local user has read.
type Subscription struct {
	tr    Transport
	fetch Fetcher
	opts  Options
	log   zerolog.Logger

	mu       sync.Mutex
	timeline *Timeline

	states chan transport.State
	events chan models.Event

	removeState func()
	cancel      context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
}

// Subscribe joins the room on tr and starts syncing it.
func Subscribe(tr Transport, fetch Fetcher, opts Options) *Subscription {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReadDelay <= 0 {
		opts.ReadDelay = DefaultReadDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		tr:       tr,
		fetch:    fetch,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "roomsync").Str("room", opts.RoomID).Logger(),
		timeline: NewTimeline(),
		states:   make(chan transport.State, 8),
		events:   make(chan models.Event, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	push := func(ev models.Event) {
		select {
		case s.events <- ev:
		default:
			// Polling picks up whatever is dropped here.
			s.log.Debug().Str("type", ev.Type).Msg("event queue full, dropping")
		}
	}
	tr.Subscribe(opts.RoomID, models.EventMessageReceived, push)
	tr.Subscribe(opts.RoomID, models.EventReadStatusUpdated, push)

	s.removeState = tr.OnState(func(st transport.State) {
		select {
		case s.states <- st:
		case <-ctx.Done():
		}
	})

	if err := tr.Join(ctx, opts.RoomID); err != nil {
		s.log.Warn().Err(err).Msg("join failed, will join on reconnect")
	}

	go s.run(ctx, tr.State())
	return s
}

// Messages returns a snapshot of the room's messages in timestamp order.
func (s *Subscription) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Messages()
}

// Post sends a message to the room over the push connection.
func (s *Subscription) Post(ctx context.Context, text string) error {
	return s.tr.Emit(ctx, models.EventNewMessage, models.Message{
		Text:     text,
		Sender:   s.opts.UserName,
		SenderID: s.opts.UserID,
		RoomID:   s.opts.RoomID,
	})
}

func (s *Subscription) run(ctx context.Context, initial transport.State) {
	defer close(s.done)

	var (
		poll      *time.Ticker
		pollC     <-chan time.Time
		readTimer *time.Timer
		readC     <-chan time.Time
	)
	stopPoll := func() {
		if poll != nil {
			poll.Stop()
			poll, pollC = nil, nil
		}
	}
	defer stopPoll()
	defer func() {
		if readTimer != nil {
			readTimer.Stop()
		}
	}()

	scheduleRead := func() {
		if readC != nil {
			return
		}
		s.mu.Lock()
		unread := len(s.timeline.Unread(s.opts.UserID))
		s.mu.Unlock()
		if unread == 0 {
			return
		}
		readTimer = time.NewTimer(s.opts.ReadDelay)
		readC = readTimer.C
	}

	onState := func(st transport.State) {
		if st != transport.Connected {
			stopPoll()
			return
		}
		s.refresh(ctx)
		if poll == nil {
			poll = time.NewTicker(s.opts.PollInterval)
			pollC = poll.C
		}
		scheduleRead()
	}

	if initial == transport.Connected {
		onState(initial)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case st := <-s.states:
			onState(st)
		case <-pollC:
			s.refresh(ctx)
			scheduleRead()
		case ev := <-s.events:
			s.apply(ev)
			scheduleRead()
		case <-readC:
			readTimer, readC = nil, nil
			s.sendReadReceipts(ctx)
		}
	}
}

func (s *Subscription) refresh(ctx context.Context) {
	msgs, err := s.fetch.FetchMessages(ctx, s.opts.RoomID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Msg("fetch messages failed")
		}
		return
	}
	s.update(func(t *Timeline) bool { return t.Merge(msgs...) })
}

func (s *Subscription) apply(ev models.Event) {
	switch ev.Type {
	case models.EventMessageReceived:
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			s.log.Debug().Err(err).Msg("malformed message-received")
			return
		}
		s.update(func(t *Timeline) bool { return t.Merge(msg) })
	case models.EventReadStatusUpdated:
		var updates []models.ReadStatusUpdate
		if err := json.Unmarshal(ev.Data, &updates); err != nil {
			s.log.Debug().Err(err).Msg("malformed read-status-updated")
			return
		}
		s.update(func(t *Timeline) bool { return t.ApplyReadStatus(updates...) })
	}
}

// sendReadReceipts emits one batch with every unread message and marks them
// read locally. When the emit fails the messages stay unread and go out with
// the next batch.
func (s *Subscription) sendReadReceipts(ctx context.Context) {
	s.mu.Lock()
	unread := s.timeline.Unread(s.opts.UserID)
	s.mu.Unlock()
	if len(unread) == 0 {
		return
	}

	err := s.tr.Emit(ctx, models.EventMessagesRead, models.MessagesRead{
		MessageIDs: unread,
		RoomID:     s.opts.RoomID,
		UserID:     s.opts.UserID,
	})
	if err != nil {
		s.log.Debug().Err(err).Int("messages", len(unread)).Msg("read receipts not sent")
		return
	}

	updates := make([]models.ReadStatusUpdate, len(unread))
	for i, id := range unread {
		updates[i] = models.ReadStatusUpdate{MessageID: id, RoomID: s.opts.RoomID, UserID: s.opts.UserID}
	}
	s.update(func(t *Timeline) bool { return t.ApplyReadStatus(updates...) })
}

func (s *Subscription) update(fn func(*Timeline) bool) {
	s.mu.Lock()
	changed := fn(s.timeline)
	var snapshot []models.Message
	if changed && s.opts.OnChange != nil {
		snapshot = s.timeline.Messages()
	}
	s.mu.Unlock()

	if snapshot != nil {
		s.opts.OnChange(snapshot)
	}
}

// Close leaves the room, removes the room's handlers and stops polling and
// pending read receipts. It is safe to call more than once and while
// disconnected.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.removeState()
		s.tr.Unsubscribe(s.opts.RoomID)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tr.Leave(ctx, s.opts.RoomID); err != nil {
			s.log.Debug().Err(err).Msg("leave-room not sent")
		}
	})
}
