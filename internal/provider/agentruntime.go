package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenSource yields a ready-to-use bearer credential. Signing and refresh
// happen outside this package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same value.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("agent runtime: empty token")
	}
	return string(t), nil
}

// AgentRuntimeOptions configures AgentRuntimeProvider.
type AgentRuntimeOptions struct {
	EndpointID string
	Region     string
	// BaseURL overrides the region-derived URL.
	BaseURL string
	Tokens  TokenSource
	Timeout time.Duration
}

// AgentRuntimeProvider talks to a hosted agent runtime whose sessions keep
// conversation state server side.
type AgentRuntimeProvider struct {
	endpointID string
	baseURL    string
	tokens     TokenSource
	client     *http.Client
}

func NewAgentRuntimeProvider(opts AgentRuntimeOptions) (*AgentRuntimeProvider, error) {
	if opts.EndpointID == "" {
		return nil, errors.New("AGENT_ENDPOINT_ID vacío")
	}
	if opts.Tokens == nil {
		return nil, errors.New("agent runtime: token source requerido")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		if opts.Region == "" {
			return nil, errors.New("AGENT_REGION vacío")
		}
		base = fmt.Sprintf("https://agent-runtime.generativeai.%s.oci.oraclecloud.com/20240531", opts.Region)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AgentRuntimeProvider{
		endpointID: opts.EndpointID,
		baseURL:    base,
		tokens:     opts.Tokens,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (p *AgentRuntimeProvider) Model() string { return "agent-endpoint:" + p.endpointID }

func (p *AgentRuntimeProvider) CreateSession(ctx context.Context, displayName, description string) (string, error) {
	body := map[string]string{"displayName": displayName, "description": description}
	var out struct {
		ID string `json:"id"`
	}
	if err := p.do(ctx, http.MethodPost, p.endpointPath("sessions"), body, &out); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("create session: respuesta sin id")
	}
	return out.ID, nil
}

func (p *AgentRuntimeProvider) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	if err := checkSize(text); err != nil {
		return "", err
	}
	body := map[string]any{
		"userMessage":  text,
		"sessionId":    sessionID,
		"shouldStream": false,
	}
	var out struct {
		Message *struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	}
	if err := p.do(ctx, http.MethodPost, p.endpointPath("actions", "chat"), body, &out); err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	if out.Message == nil {
		return "", errors.New("chat: respuesta vacía")
	}
	return out.Message.Content.Text, nil
}

func (p *AgentRuntimeProvider) DeleteSession(ctx context.Context, sessionID string) error {
	if err := p.do(ctx, http.MethodDelete, p.endpointPath("sessions", sessionID), nil, nil); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *AgentRuntimeProvider) endpointPath(parts ...string) string {
	segs := []string{p.baseURL, "agentEndpoints", url.PathEscape(p.endpointID)}
	for _, s := range parts {
		segs = append(segs, url.PathEscape(s))
	}
	return strings.Join(segs, "/")
}

// StatusError is a non-2xx answer from the runtime.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agent runtime %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("agent runtime %d", e.Status)
}

func (p *AgentRuntimeProvider) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	tok, err := p.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodDelete {
		return ErrUnknownSession
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Status: resp.StatusCode, Code: e.Code, Message: e.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
