package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-risk-fusion/internal/config"
	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/knowledge"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestNew_Builtin(t *testing.T) {
	cfg := &domain.Config{
		Transcription: domain.TranscriptionConfig{Provider: "whisper"},
		Knowledge:     domain.KnowledgeConfig{Source: config.SourceBuiltin},
	}

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, knowledge.Default().Definition(), a.Knowledge.Definition())
	assert.Equal(t, "whisper", a.Transcriber.Name())
	assert.False(t, a.Transcriber.IsConfigured())
	assert.NotNil(t, a.Diagnosis)

	// No imaging endpoint: the classifier fails to load on first use only
	_, err = a.Imaging.Classify(context.Background(), []byte("scan"))
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := &domain.Config{Transcription: domain.TranscriptionConfig{Provider: "azure"}}
	_, err := New(context.Background(), cfg, quietLogger())
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestLoadKnowledge(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		cfg := &domain.Config{Knowledge: domain.KnowledgeConfig{
			Source: config.SourceYAML,
			Path:   filepath.Join("..", "knowledge", "testdata", "knowledge.yaml"),
		}}
		kb, err := LoadKnowledge(context.Background(), cfg, quietLogger())
		require.NoError(t, err)
		assert.Contains(t, kb.Conditions(), domain.Condition("Influenza"))
	})

	t.Run("sqlite with migrations", func(t *testing.T) {
		cfg := &domain.Config{
			Knowledge: domain.KnowledgeConfig{Source: config.SourceDatabase},
			Database: domain.DatabaseConfig{
				Driver:         "sqlite",
				DSN:            filepath.Join(t.TempDir(), "kb.db"),
				MigrateOnStart: true,
			},
		}
		kb, err := LoadKnowledge(context.Background(), cfg, quietLogger())
		require.NoError(t, err)
		assert.Equal(t, knowledge.Default().Definition(), kb.Definition())
	})

	t.Run("sqlite without migrations", func(t *testing.T) {
		cfg := &domain.Config{
			Knowledge: domain.KnowledgeConfig{Source: config.SourceDatabase},
			Database: domain.DatabaseConfig{
				Driver: "sqlite",
				DSN:    filepath.Join(t.TempDir(), "empty.db"),
			},
		}
		_, err := LoadKnowledge(context.Background(), cfg, quietLogger())
		assert.Error(t, err)
	})

	t.Run("unknown source", func(t *testing.T) {
		cfg := &domain.Config{Knowledge: domain.KnowledgeConfig{Source: "etcd"}}
		_, err := LoadKnowledge(context.Background(), cfg, quietLogger())
		assert.True(t, domain.IsKind(err, domain.KindConfiguration))
	})
}
