package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/clinical-risk-fusion/internal/domain"
)

const (
	defaultDeepgramURL   = "https://api.deepgram.com"
	defaultDeepgramModel = "nova-2"
)

// deepgramLanguages is the provider's published language list
var deepgramLanguages = map[string]bool{
	"en": true, "en-US": true, "en-AU": true, "en-GB": true, "en-IN": true, "en-NZ": true,
	"es": true, "es-419": true,
	"hi": true,
	"de": true,
	"fr": true, "fr-CA": true,
	"pt": true, "pt-BR": true, "pt-PT": true,
	"it": true,
	"ja": true,
	"ko": true, "ko-KR": true,
	"zh": true, "zh-CN": true, "zh-Hans": true, "zh-TW": true, "zh-Hant": true, "zh-HK": true,
	"ru": true,
	"nl": true, "nl-BE": true,
	"sv": true, "sv-SE": true,
	"da": true, "da-DK": true,
	"no": true,
	"fi": true,
	"pl": true,
	"tr": true,
	"cs": true,
	"sk": true,
	"uk": true,
	"ro": true,
	"hu": true,
	"el": true,
	"bg": true,
	"ca": true,
	"et": true,
	"lv": true,
	"lt": true,
	"th": true, "th-TH": true,
	"vi":  true,
	"id":  true,
	"ms":  true,
	"ta":  true,
	"taq": true,
}

// DeepgramLanguages returns the accepted language codes, sorted
func DeepgramLanguages() []string {
	langs := make([]string, 0, len(deepgramLanguages))
	for lang := range deepgramLanguages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Deepgram posts raw audio to the Deepgram listen endpoint
type Deepgram struct {
	base
	baseURL string
	model   string
}

// NewDeepgram creates a Deepgram provider
func NewDeepgram(cfg domain.ProviderConfig, opts Options) *Deepgram {
	d := &Deepgram{
		base:    newBase(ProviderDeepgram, cfg.APIKey, opts),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}
	if d.baseURL == "" {
		d.baseURL = defaultDeepgramURL
	}
	if d.model == "" {
		d.model = defaultDeepgramModel
	}
	return d
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends the audio and returns the first alternative of the first channel
func (d *Deepgram) Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error) {
	if err := d.requireConfigured(); err != nil {
		return "", err
	}
	if language != "" && !deepgramLanguages[language] {
		return "", domain.NewUnsupportedLanguageError(d.name, language, DeepgramLanguages())
	}

	query := url.Values{}
	query.Set("model", d.model)
	query.Set("smart_format", "true")
	if language != "" {
		query.Set("language", language)
	}
	endpoint := fmt.Sprintf("%s/v1/listen?%s", d.baseURL, query.Encode())
	contentType := audioMIME(filename, "application/octet-stream")

	return d.run(ctx, filename, func(attemptCtx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(audio))
		if err != nil {
			return "", fmt.Errorf("building deepgram request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+d.apiKey)
		req.Header.Set("Content-Type", contentType)

		resp, err := d.http.Do(req)
		if err != nil {
			return "", classifyTransport(ctx, d.name, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", classifyTransport(ctx, d.name, err)
		}
		if err := classifyResponse(d.name, resp.StatusCode, resp.Header, body); err != nil {
			return "", err
		}

		var parsed deepgramResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", malformedResponse(d.name, err)
		}
		channels := parsed.Results.Channels
		if len(channels) == 0 || len(channels[0].Alternatives) == 0 {
			return "", nil
		}
		return channels[0].Alternatives[0].Transcript, nil
	})
}
