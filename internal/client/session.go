package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"assistant-relay/internal/models"
)

const (
	Greeting = "Hi! I am your personal AI assistant. How can I help you today?"
	Apology  = "I'm sorry, but I encountered an error. Please try again later."
)

const defaultReadSize = 4096

// Session holds one UI session's conversation. Only one send may be in
// flight at a time; further sends are dropped silently until it finishes.
type Session struct {
	mu       sync.Mutex
	relay    Relay
	messages []models.Message
	input    string
	sending  bool
	lastErr  error

	onChange func([]models.Message)
	readSize int
	logger   zerolog.Logger
}

type Option func(*Session)

// WithOnChange registers fn to receive a copy of the conversation after
// every mutation. Calls come from the goroutine running Send.
func WithOnChange(fn func([]models.Message)) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithReadSize sets the maximum number of bytes consumed per stream read.
func WithReadSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.readSize = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// NewSession starts a conversation seeded with the assistant greeting.
func NewSession(relay Relay, opts ...Option) *Session {
	s := &Session{
		relay:    relay,
		messages: []models.Message{{Role: models.RoleAssistant, Content: Greeting}},
		readSize: defaultReadSize,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Conversation(s.messages).Clone()
}

// SetInput stores the text being composed.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Busy reports whether a send is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Err returns the failure of the most recent send, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Send relays text and streams the answer into the conversation. It blocks
// until the stream ends and reports false when the send was dropped, either
// because text is blank or another send is in flight.
func (s *Session) Send(ctx context.Context, text string) bool {
	history, ok := s.begin(text)
	if !ok {
		return false
	}
	defer s.finish()

	body, err := s.relay.Open(ctx, history)
	if err != nil {
		s.fail(err)
		return true
	}
	defer body.Close()

	if err := s.stream(body); err != nil {
		s.fail(err)
	}
	return true
}

// begin takes the guard, appends the user message and the empty assistant
// placeholder, and returns the history to relay.
func (s *Session) begin(text string) ([]models.Message, bool) {
	s.mu.Lock()
	if strings.TrimSpace(text) == "" || s.sending {
		s.mu.Unlock()
		return nil, false
	}

	s.sending = true
	s.lastErr = nil
	s.input = ""
	s.messages = append(s.messages, models.Message{Role: models.RoleUser, Content: text})
	history := models.Conversation(s.messages).Clone()
	s.messages = append(s.messages, models.Message{Role: models.RoleAssistant})
	snapshot := models.Conversation(s.messages).Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return history, true
}

func (s *Session) finish() {
	s.mu.Lock()
	s.sending = false
	snapshot := models.Conversation(s.messages).Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *Session) stream(body io.Reader) error {
	dec := newChunkDecoder()
	buf := make([]byte, s.readSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			s.appendToLast(dec.Decode(buf[:n], false))
		}
		if errors.Is(err, io.EOF) {
			s.appendToLast(dec.Decode(nil, true))
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
		}
	}
}

// appendToLast concatenates text onto the last message only.
func (s *Session) appendToLast(text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	last := &s.messages[len(s.messages)-1]
	last.Content += text
	snapshot := models.Conversation(s.messages).Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// fail records err and puts the apology in front of the user. A bad status
// replaces the placeholder; a broken stream keeps any text that already
// arrived and adds the apology after it.
func (s *Session) fail(err error) {
	s.logger.Error().Err(err).Msg("chat relay failed")

	s.mu.Lock()
	s.lastErr = err
	last := &s.messages[len(s.messages)-1]

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr), last.Content == "":
		last.Content = Apology
	default:
		s.messages = append(s.messages, models.Message{Role: models.RoleAssistant, Content: Apology})
	}
	snapshot := models.Conversation(s.messages).Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *Session) notify(snapshot []models.Message) {
	if s.onChange != nil {
		s.onChange(snapshot)
	}
}
