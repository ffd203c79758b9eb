package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// SystemPrompt is prepended to every user message before it is sent upstream.
const SystemPrompt = "I am an AI support assistant designed to help you with your inquiries, troubleshoot issues, and provide guidance. My goal is to assist you by answering your questions, offering solutions, and providing clear, concise, and helpful information in a friendly and professional manner."

// BuildPrompt combines the fixed preamble with the latest user message.
// Earlier turns are deliberately not included.
func BuildPrompt(userMessage string) string {
	return SystemPrompt + " " + userMessage
}

type GeminiService struct {
	apiKey    func() string
	modelName string
	timeout   time.Duration
	rateChan  chan struct{} // Token bucket
}

// NewGeminiService builds a service that creates a fresh Gemini client per
// call from the key returned by apiKey.
func NewGeminiService(apiKey func() string, modelName string, concurrentReqs int, timeout time.Duration) *GeminiService {
	if concurrentReqs < 1 {
		concurrentReqs = 1
	}

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		apiKey:    apiKey,
		modelName: modelName,
		timeout:   timeout,
		rateChan:  rateChan,
	}
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for Gemini rate slot: %w", ctx.Err())
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// begin applies the upstream timeout, takes a rate slot and opens a client.
// The returned func must be called to release everything.
func (s *GeminiService) begin(ctx context.Context) (context.Context, *genai.GenerativeModel, func(), error) {
	key := s.apiKey()
	if key == "" {
		return nil, nil, nil, ErrMissingAPIKey
	}

	cancel := func() {}
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}

	if err := s.acquireRate(ctx); err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		s.releaseRate()
		cancel()
		return nil, nil, nil, fmt.Errorf("%w: failed to create Gemini client: %w", ErrUpstreamFailure, err)
	}

	done := func() {
		client.Close()
		s.releaseRate()
		cancel()
	}
	return ctx, client.GenerativeModel(s.modelName), done, nil
}

// Generate returns the complete answer for prompt.
func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, model, done, err := s.begin(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: Gemini API error: %w", ErrUpstreamFailure, err)
	}

	logCandidates(resp)

	text := extractText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// GenerateStream forwards each text fragment to emit in arrival order. An
// error returned by emit stops the stream and is returned unchanged.
func (s *GeminiService) GenerateStream(ctx context.Context, prompt string, emit func(string) error) error {
	ctx, model, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	iter := model.GenerateContentStream(ctx, genai.Text(prompt))
	emitted := false
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: Gemini stream error: %w", ErrUpstreamFailure, err)
		}

		logCandidates(resp)

		text := extractText(resp)
		if text == "" {
			continue
		}
		if err := emit(text); err != nil {
			return err
		}
		emitted = true
	}

	if !emitted {
		return ErrEmptyResponse
	}
	return nil
}

// Helper functions

func logCandidates(resp *genai.GenerateContentResponse) {
	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
			log.Warn().
				Int("candidate", i).
				Str("finish_reason", cand.FinishReason.String()).
				Int32("token_count", cand.TokenCount).
				Msg("Gemini stopped early")
		}
	}
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
