package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"assistant-relay/internal/config"
	"assistant-relay/internal/models"
	"assistant-relay/internal/services"
)

// RelayErrorBody is the only failure detail a relay caller ever sees.
const RelayErrorBody = "Internal Server Error"

const maxRelayBodyBytes = 1 << 20

type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, emit func(string) error) error
}

type RelayHandler struct {
	generator   generator
	incremental bool
}

func NewRelayHandler(gen generator, streamMode string) *RelayHandler {
	return &RelayHandler{
		generator:   gen,
		incremental: streamMode == config.StreamModeIncremental,
	}
}

// Chat relays the latest message of the posted conversation to the generator
// and streams the answer back as an octet stream.
func (h *RelayHandler) Chat(w http.ResponseWriter, r *http.Request) {
	conv, err := decodeConversation(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	last, _ := conv.Last()
	prompt := services.BuildPrompt(last.Content)

	if h.incremental {
		h.relayIncremental(w, r, prompt)
		return
	}

	text, err := h.generator.Generate(r.Context(), prompt)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// One chunk, but still a chunked body so clients read it the same way
	// as an incremental stream.
	writeStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, text); err != nil {
		log.Warn().Err(err).Str("request_id", r.Header.Get("X-Request-ID")).Msg("relay write failed")
		return
	}
	http.NewResponseController(w).Flush()
}

func (h *RelayHandler) relayIncremental(w http.ResponseWriter, r *http.Request, prompt string) {
	rc := http.NewResponseController(w)
	started := false
	chunks := 0

	err := h.generator.GenerateStream(r.Context(), prompt, func(chunk string) error {
		if !started {
			writeStreamHeaders(w)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
		chunks++
		rc.Flush()
		return nil
	})
	if err == nil {
		return
	}

	if !started {
		h.fail(w, r, err)
		return
	}

	// Headers are gone; all that is left is to end the body early.
	log.Error().
		Err(err).
		Str("request_id", r.Header.Get("X-Request-ID")).
		Int("chunks_sent", chunks).
		Msg("relay stream aborted")
}

func (h *RelayHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().
		Err(err).
		Str("request_id", r.Header.Get("X-Request-ID")).
		Msg("Error in chat relay")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusInternalServerError)
	io.WriteString(w, RelayErrorBody)
}

func writeStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// decodeConversation accepts only a non-empty JSON array of role-tagged messages.
func decodeConversation(body io.Reader) (models.Conversation, error) {
	var conv models.Conversation
	dec := json.NewDecoder(io.LimitReader(body, maxRelayBodyBytes))
	if err := dec.Decode(&conv); err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrRequestMalformed, err)
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after conversation", services.ErrRequestMalformed)
	}
	if len(conv) == 0 {
		return nil, fmt.Errorf("%w: conversation is empty", services.ErrRequestMalformed)
	}
	for i, m := range conv {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: message %d has role %q", services.ErrRequestMalformed, i, m.Role)
		}
	}
	return conv, nil
}
