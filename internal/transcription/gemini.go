package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clinical-risk-fusion/internal/domain"
)

const (
	defaultGeminiURL   = "https://generativelanguage.googleapis.com"
	defaultGeminiModel = "gemini-1.5-pro"

	geminiPrompt         = "Transcribe this clinical voice note to plain text. Only return the transcript."
	geminiLanguagePrompt = "Transcribe this clinical voice note (language: %s) to plain text. Only return the transcript."
)

// Gemini asks a Gemini model to transcribe inline audio via generateContent
type Gemini struct {
	base
	baseURL string
	model   string
}

// NewGemini creates a Gemini provider
func NewGemini(cfg domain.ProviderConfig, opts Options) *Gemini {
	g := &Gemini{
		base:    newBase(ProviderGemini, cfg.APIKey, opts),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}
	if g.baseURL == "" {
		g.baseURL = defaultGeminiURL
	}
	if g.model == "" {
		g.model = defaultGeminiModel
	}
	return g
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Transcribe prompts the model with the audio; the language only shapes the prompt
func (g *Gemini) Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error) {
	if err := g.requireConfigured(); err != nil {
		return "", err
	}

	prompt := geminiPrompt
	if language != "" {
		prompt = fmt.Sprintf(geminiLanguagePrompt, language)
	}
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{
					MimeType: audioMIME(filename, "audio/webm"),
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding gemini request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)

	return g.run(ctx, filename, func(attemptCtx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("building gemini request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.http.Do(req)
		if err != nil {
			return "", classifyTransport(ctx, g.name, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", classifyTransport(ctx, g.name, err)
		}
		if isGeminiAuthFailure(resp.StatusCode, body) {
			return "", domain.NewAuthenticationError(g.name, resp.StatusCode, fmt.Errorf("%s", truncate(string(body))))
		}
		if err := classifyResponse(g.name, resp.StatusCode, resp.Header, body); err != nil {
			return "", err
		}

		var parsed geminiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", malformedResponse(g.name, err)
		}
		if len(parsed.Candidates) == 0 {
			return "", nil
		}
		var text strings.Builder
		for _, part := range parsed.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
		return strings.TrimSpace(text.String()), nil
	})
}

// isGeminiAuthFailure also catches the 400 Google returns for a malformed key
func isGeminiAuthFailure(status int, body []byte) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(string(body)), "api key")
	default:
		return false
	}
}
