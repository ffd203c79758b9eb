package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant-relay/internal/config"
	"assistant-relay/internal/services"
)

type stubGenerator struct {
	reply      string
	chunks     []string
	err        error
	failAfter  int // GenerateStream fails after this many chunks when err is set
	calls      int
	lastPrompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubGenerator) GenerateStream(ctx context.Context, prompt string, emit func(string) error) error {
	s.calls++
	s.lastPrompt = prompt
	for i, c := range s.chunks {
		if s.err != nil && i == s.failAfter {
			return s.err
		}
		if err := emit(c); err != nil {
			return err
		}
	}
	if s.err != nil && s.failAfter >= len(s.chunks) {
		return s.err
	}
	return nil
}

func postChat(h *RelayHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Chat(rr, req)
	return rr
}

func TestRelayHandler_Chat_ReturnsGeneratedText(t *testing.T) {
	gen := &stubGenerator{reply: "Hello there, how can I help?"}
	h := NewRelayHandler(gen, config.StreamModeBuffered)

	rr := postChat(h, `[{"role":"user","content":"Hi"}]`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hello there, how can I help?", rr.Body.String())
	assert.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))
	assert.True(t, rr.Flushed, "body should be flushed as a stream chunk")
	assert.Equal(t, 1, gen.calls)
}

func TestRelayHandler_Chat_SendsOnlyLatestMessage(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	h := NewRelayHandler(gen, config.StreamModeBuffered)

	body := `[
		{"role":"assistant","content":"Hi! I am your personal AI assistant."},
		{"role":"user","content":"first question"},
		{"role":"assistant","content":"first answer"},
		{"role":"user","content":"second question"}
	]`
	rr := postChat(h, body)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, services.BuildPrompt("second question"), gen.lastPrompt)
	assert.NotContains(t, gen.lastPrompt, "first question")
}

func TestRelayHandler_Chat_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not an array", `{"role":"user","content":"Hi"}`},
		{"empty array", `[]`},
		{"null", `null`},
		{"not json", `hello`},
		{"empty body", ``},
		{"array of numbers", `[1,2,3]`},
		{"unknown role", `[{"role":"system","content":"Hi"}]`},
		{"trailing garbage", `[{"role":"user","content":"Hi"}] {not json`},
		{"two arrays", `[{"role":"user","content":"Hi"}][{"role":"user","content":"again"}]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{reply: "never"}
			h := NewRelayHandler(gen, config.StreamModeBuffered)

			rr := postChat(h, tc.body)

			assert.NotEqual(t, http.StatusOK, rr.Code)
			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, RelayErrorBody, rr.Body.String())
			assert.Zero(t, gen.calls, "generator must not be called for a malformed body")
		})
	}
}

func TestRelayHandler_Chat_UpstreamFailureIsOpaque(t *testing.T) {
	cause := fmt.Errorf("%w: Gemini API error: googleapi: Error 403: API key not valid (secret-detail)", services.ErrUpstreamFailure)
	h := NewRelayHandler(&stubGenerator{err: cause}, config.StreamModeBuffered)

	rr := postChat(h, `[{"role":"user","content":"Hi"}]`)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Internal Server Error", rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "secret-detail")
	assert.NotContains(t, rr.Body.String(), "goroutine")
}

func TestRelayHandler_Chat_MissingKeyIsGenericFailure(t *testing.T) {
	h := NewRelayHandler(&stubGenerator{err: services.ErrMissingAPIKey}, config.StreamModeBuffered)

	rr := postChat(h, `[{"role":"user","content":"Hi"}]`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, RelayErrorBody, rr.Body.String())
}

func TestRelayHandler_Incremental_ForwardsChunksInOrder(t *testing.T) {
	gen := &stubGenerator{chunks: []string{"Hel", "lo", ", world"}}
	h := NewRelayHandler(gen, config.StreamModeIncremental)

	rr := postChat(h, `[{"role":"user","content":"Hi"}]`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hello, world", rr.Body.String())
	assert.True(t, rr.Flushed)
}

func TestRelayHandler_Incremental_FailureBeforeFirstChunk(t *testing.T) {
	gen := &stubGenerator{chunks: []string{"never"}, err: services.ErrEmptyResponse, failAfter: 0}
	h := NewRelayHandler(gen, config.StreamModeIncremental)

	rr := postChat(h, `[{"role":"user","content":"Hi"}]`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, RelayErrorBody, rr.Body.String())
}

func TestRelayHandler_Incremental_FailureMidStreamKeepsSentChunks(t *testing.T) {
	gen := &stubGenerator{chunks: []string{"Hel", "lo"}, err: errors.New("connection reset"), failAfter: 1}
	h := NewRelayHandler(gen, config.StreamModeIncremental)

	rr := postChat(h, `[{"role":"user","content":"Hi"}]`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hel", rr.Body.String())
}

func TestRelayHandler_Chat_NotIdempotent(t *testing.T) {
	gen := &stubGenerator{reply: "answer"}
	h := NewRelayHandler(gen, config.StreamModeBuffered)

	for i := 0; i < 2; i++ {
		rr := postChat(h, `[{"role":"user","content":"same"}]`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Equal(t, 2, gen.calls)
}

func TestDecodeConversation_WrapsMalformed(t *testing.T) {
	_, err := decodeConversation(strings.NewReader(`[]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrRequestMalformed)

	conv, err := decodeConversation(strings.NewReader("[{\"role\":\"user\",\"content\":\"Hi\"}]\n"))
	require.NoError(t, err)
	assert.Len(t, conv, 1)
}
