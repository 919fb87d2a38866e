package transcription

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-risk-fusion/internal/domain"
)

func newTestDeepgram(t *testing.T, handler http.HandlerFunc, rec *sleepRecorder) (*Deepgram, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	d := NewDeepgram(domain.ProviderConfig{APIKey: "dg-key", BaseURL: server.URL}, testOptions(rec))
	return d, &calls
}

func TestDeepgram_Transcribe(t *testing.T) {
	rec := &sleepRecorder{}
	d, calls := newTestDeepgram(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "nova-2", r.URL.Query().Get("model"))
		assert.Equal(t, "true", r.URL.Query().Get("smart_format"))
		assert.Equal(t, "hi", r.URL.Query().Get("language"))
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("RIFF"), body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":"mujhe khashi hai"}]}]}}`)
	}, rec)

	got, err := d.Transcribe(context.Background(), "note.WAV", []byte("RIFF"), "hi")
	require.NoError(t, err)
	assert.Equal(t, "mujhe khashi hai", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, ProviderDeepgram, d.Name())
}

func TestDeepgram_OmitsLanguageWhenEmpty(t *testing.T) {
	rec := &sleepRecorder{}
	d, _ := newTestDeepgram(t, func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["language"]
		assert.False(t, present)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"results":{"channels":[]}}`)
	}, rec)

	got, err := d.Transcribe(context.Background(), "note.ogg", []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDeepgram_AlwaysUnavailable(t *testing.T) {
	rec := &sleepRecorder{}
	d, calls := newTestDeepgram(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, rec)

	_, err := d.Transcribe(context.Background(), "note.webm", []byte("x"), "")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindExhaustedRetries))
	assert.Equal(t, int32(4), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.recorded())
}

func TestDeepgram_HonoursRetryAfter(t *testing.T) {
	rec := &sleepRecorder{}
	var n int32
	d, calls := newTestDeepgram(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":"better now"}]}]}}`)
	}, rec)

	got, err := d.Transcribe(context.Background(), "note.webm", []byte("x"), "en")
	require.NoError(t, err)
	assert.Equal(t, "better now", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{7 * time.Second}, rec.recorded())
}

func TestDeepgram_TerminalStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   domain.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, domain.KindAuthentication},
		{"bad request", http.StatusBadRequest, domain.KindUpstreamClient},
		{"payload too large", http.StatusRequestEntityTooLarge, domain.KindUpstreamClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &sleepRecorder{}
			d, calls := newTestDeepgram(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"err_msg":"nope"}`, tt.status)
			}, rec)

			_, err := d.Transcribe(context.Background(), "note.webm", []byte("x"), "")
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.KindOf(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))
			assert.Empty(t, rec.recorded())
		})
	}
}

func TestDeepgram_UnsupportedLanguage(t *testing.T) {
	rec := &sleepRecorder{}
	d, calls := newTestDeepgram(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, rec)

	_, err := d.Transcribe(context.Background(), "note.webm", []byte("x"), "xx")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindUnsupportedLanguage))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))

	var riskErr *domain.RiskError
	require.True(t, errors.As(err, &riskErr))
	assert.Contains(t, riskErr.Details, "hi")
}

func TestDeepgram_NotConfigured(t *testing.T) {
	for _, key := range []string{"", "   ", "your-deepgram-api-key-here"} {
		d := NewDeepgram(domain.ProviderConfig{APIKey: key}, testOptions(&sleepRecorder{}))
		assert.False(t, d.IsConfigured())

		_, err := d.Transcribe(context.Background(), "note.webm", []byte("x"), "")
		assert.True(t, domain.IsKind(err, domain.KindConfiguration), "key %q", key)
	}
}

func TestDeepgram_TransportFailureIsRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	rec := &sleepRecorder{}
	d := NewDeepgram(domain.ProviderConfig{APIKey: "dg-key", BaseURL: url}, testOptions(rec))

	_, err := d.Transcribe(context.Background(), "note.webm", []byte("x"), "")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindExhaustedRetries))
	assert.Len(t, rec.recorded(), 3)
}

func TestDeepgramLanguagesSorted(t *testing.T) {
	langs := DeepgramLanguages()
	assert.Contains(t, langs, "en-IN")
	assert.Contains(t, langs, "taq")
	assert.IsIncreasing(t, langs)
}
