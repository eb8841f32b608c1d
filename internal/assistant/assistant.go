// Package assistant answers coding questions through an OpenAI-compatible
// chat completions API, falling back to canned answers when it is unavailable.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

type Mode string

const (
	ModeExplain  Mode = "explain"
	ModeDebug    Mode = "debug"
	ModeGenerate Mode = "generate"
	ModeLearn    Mode = "learn"
	ModeChat     Mode = "chat"
)

const defaultModel = "gpt-3.5-turbo"

var ErrEmptyPrompt = errors.New("prompt cannot be empty")

var systemPrompts = map[Mode]string{
	ModeExplain:  "You are a patient senior developer. Explain the given code or concept clearly and concisely.",
	ModeDebug:    "You are an expert debugger. Find the bug in the given code, explain the cause and show the fix.",
	ModeGenerate: "You are a pragmatic engineer. Write clean, working code for the request with short comments.",
	ModeLearn:    "You are a mentor. Build a short step-by-step learning path for the topic with practice ideas.",
	ModeChat:     "You are a friendly assistant for a developer community. Answer helpfully and briefly.",
}

var fallbacks = map[Mode]string{
	ModeExplain:  "I can't reach the AI service right now. Try breaking the code into small pieces and reading each one: what goes in, what comes out, and what changes along the way.",
	ModeDebug:    "I can't reach the AI service right now. Start by reproducing the bug with the smallest input, read the full error message and stack trace, and add logging around the failing line.",
	ModeGenerate: "I can't reach the AI service right now. Sketch the function signature and the test cases first, then fill in the implementation one case at a time.",
	ModeLearn:    "I can't reach the AI service right now. Pick one lesson from the lessons page, build a tiny project with it, and share it in the showcase for feedback.",
	ModeChat:     "I can't reach the AI service right now. Ask the community in the general chat room, someone is usually around to help.",
}

// ParseMode maps a client supplied mode to a known one; anything unknown is free-text chat.
func ParseMode(s string) Mode {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := systemPrompts[m]; ok {
		return m
	}
	return ModeChat
}

// Fallback returns the canned answer for the mode.
func Fallback(mode Mode) string {
	if f, ok := fallbacks[mode]; ok {
		return f
	}
	return fallbacks[ModeChat]
}

type Answer struct {
	Mode     Mode   `json:"mode"`
	Text     string `json:"response"`
	Fallback bool   `json:"fallback"`
}

type Assistant struct {
	log      *log.Logger
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

func New(logger *log.Logger, endpoint, model, apiKey string) *Assistant {
	if model == "" {
		model = defaultModel
	}

	return &Assistant{
		log:      logger,
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Ask never fails because of the upstream service; it degrades to the fallback answer.
func (a *Assistant) Ask(ctx context.Context, mode Mode, prompt string) (Answer, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Answer{}, ErrEmptyPrompt
	}

	if a.apiKey == "" || a.endpoint == "" {
		return Answer{Mode: mode, Text: Fallback(mode), Fallback: true}, nil
	}

	text, err := a.complete(ctx, mode, prompt)
	if err != nil {
		a.log.Printf("assistant %s: %v", mode, err)
		return Answer{Mode: mode, Text: Fallback(mode), Fallback: true}, nil
	}

	return Answer{Mode: mode, Text: text}, nil
}

func (a *Assistant) complete(ctx context.Context, mode Mode, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompts[mode]},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   800,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("completion: unexpected status %d", resp.StatusCode)
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("completion: empty response")
	}

	return cr.Choices[0].Message.Content, nil
}
