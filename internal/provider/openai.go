package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const openAIResponsesURL = "https://api.openai.com/v1/responses"

// OpenAIProvider emulates agent sessions on top of the stateless Responses
// API: every session keeps its own history locally and replays it on each call.
type OpenAIProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client

	mu       sync.Mutex
	sessions map[string][]item
}

type item struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const openAISystemPrompt = "You are a data analyst. The user will send a CSV dataset in numbered chunks; " +
	"acknowledge each chunk briefly, then answer questions using only that data. " +
	"When the answer is a table, reply with a JSON array of objects or plain CSV and nothing else."

func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY vacío")
	}
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &OpenAIProvider{
		apiKey:   apiKey,
		model:    model,
		endpoint: openAIResponsesURL,
		client:   &http.Client{Timeout: 60 * time.Second},
		sessions: make(map[string][]item),
	}, nil
}

func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) CreateSession(_ context.Context, _, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.sessions[id] = []item{{Role: "system", Content: openAISystemPrompt}}
	return id, nil
}

func (p *OpenAIProvider) DeleteSession(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[sessionID]; !ok {
		return fmt.Errorf("openai: %w: %s", ErrUnknownSession, sessionID)
	}
	delete(p.sessions, sessionID)
	return nil
}

func (p *OpenAIProvider) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	if err := checkSize(text); err != nil {
		return "", err
	}
	p.mu.Lock()
	hist, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return "", fmt.Errorf("openai: %w: %s", ErrUnknownSession, sessionID)
	}
	input := make([]item, 0, len(hist)+1)
	input = append(input, hist...)
	input = append(input, item{Role: "user", Content: text})
	p.mu.Unlock()

	reply, err := p.respond(ctx, input)
	if err != nil {
		return "", err
	}

	// Only a completed exchange becomes part of the session.
	p.mu.Lock()
	if _, ok := p.sessions[sessionID]; ok {
		p.sessions[sessionID] = append(input, item{Role: "assistant", Content: reply})
	}
	p.mu.Unlock()
	return reply, nil
}

func (p *OpenAIProvider) respond(ctx context.Context, input []item) (string, error) {
	/*
		POST https://api.openai.com/v1/responses
		{"model": "...", "input": [{"role":"system","content":"..."}, {"role":"user","content":"..."}, ...]}
	*/
	payload := struct {
		Model string `json:"model"`
		Input []item `json:"input"`
	}{Model: p.model, Input: input}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error.Message != "" {
			return "", errors.New(e.Error.Message)
		}
		return "", errors.New("openai error: " + resp.Status)
	}

	var out struct {
		Output []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	// Tomamos el primer bloque de texto
	for _, o := range out.Output {
		if len(o.Content) > 0 {
			return o.Content[0].Text, nil
		}
	}
	return "", errors.New("respuesta vacía de OpenAI")
}
