package transcription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-risk-fusion/internal/domain"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) (*Gemini, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	g := NewGemini(domain.ProviderConfig{APIKey: "g-key", BaseURL: server.URL}, testOptions(&sleepRecorder{}))
	return g, &calls
}

func TestGemini_Transcribe(t *testing.T) {
	g, calls := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "(language: hi)")

		inline := req.Contents[0].Parts[1].InlineData
		require.NotNil(t, inline)
		assert.Equal(t, "audio/mpeg", inline.MimeType)
		audio, err := base64.StdEncoding.DecodeString(inline.Data)
		require.NoError(t, err)
		assert.Equal(t, []byte("ID3"), audio)

		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"I have fever "},{"text":"and cough\n"}]}}]}`)
	})

	got, err := g.Transcribe(context.Background(), "note.mp3", []byte("ID3"), "hi")
	require.NoError(t, err)
	assert.Equal(t, "I have fever and cough", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGemini_DefaultPromptAndMime(t *testing.T) {
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, geminiPrompt, req.Contents[0].Parts[0].Text)
		assert.Equal(t, "audio/webm", req.Contents[0].Parts[1].InlineData.MimeType)
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	})

	got, err := g.Transcribe(context.Background(), "recording", []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestGemini_AuthenticationFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, domain.KindAuthentication},
		{"forbidden", http.StatusForbidden, `{"error":{"message":"permission denied"}}`, domain.KindAuthentication},
		{"invalid key as bad request", http.StatusBadRequest, `{"error":{"message":"API key not valid. Please pass a valid API key."}}`, domain.KindAuthentication},
		{"other bad request", http.StatusBadRequest, `{"error":{"message":"Unsupported MIME type"}}`, domain.KindUpstreamClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, calls := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := g.Transcribe(context.Background(), "note.wav", []byte("x"), "")
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.KindOf(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		})
	}
}

func TestGemini_RetriesServerErrors(t *testing.T) {
	var n int32
	g, calls := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	})

	got, err := g.Transcribe(context.Background(), "note.wav", []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestGemini_NotConfigured(t *testing.T) {
	g := NewGemini(domain.ProviderConfig{APIKey: "your-google-api-key-here"}, testOptions(&sleepRecorder{}))
	assert.False(t, g.IsConfigured())

	_, err := g.Transcribe(context.Background(), "note.wav", []byte("x"), "")
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}
