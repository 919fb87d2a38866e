package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/fusion"
	"github.com/clinical-risk-fusion/internal/knowledge"
	"github.com/clinical-risk-fusion/pkg/symptoms"
)

// MockTranscriber is a mock implementation of domain.Transcriber
type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Name() string {
	return "whisper"
}

func (m *MockTranscriber) IsConfigured() bool {
	return true
}

func (m *MockTranscriber) Transcribe(ctx context.Context, filename string, audio []byte, language string) (string, error) {
	args := m.Called(ctx, filename, audio, language)
	return args.String(0), args.Error(1)
}

// MockImageClassifier is a mock implementation of domain.ImageClassifier
type MockImageClassifier struct {
	mock.Mock
}

func (m *MockImageClassifier) Classify(ctx context.Context, image []byte) (bool, error) {
	args := m.Called(ctx, image)
	return args.Bool(0), args.Error(1)
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(transcriber domain.Transcriber, classifier domain.ImageClassifier) *DiagnosisService {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	return NewDiagnosisService(logger, transcriber, classifier, symptoms.Default(), fusion.NewEngine(knowledge.Default(), logger)).
		WithClock(func() time.Time { return fixedNow })
}

func TestTranscribeSymptoms(t *testing.T) {
	transcriber := new(MockTranscriber)
	transcriber.On("Transcribe", mock.Anything, "note.webm", []byte("audio"), "en").
		Return("I have a bad cough and no fever", nil)

	svc := newTestService(transcriber, new(MockImageClassifier))
	result, err := svc.TranscribeSymptoms(context.Background(), Audio{Filename: "note.webm", Data: []byte("audio"), Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, "whisper", result.Provider)
	assert.Equal(t, "I have a bad cough and no fever", result.Transcript)
	assert.True(t, result.Symptoms[domain.SymptomCough])
	assert.False(t, result.Symptoms[domain.SymptomFever])
	assert.True(t, result.VitalsFlags.HasCough)
	assert.True(t, result.VitalsFlags.CanSmell)
	transcriber.AssertExpectations(t)
}

func TestTranscribeSymptoms_Errors(t *testing.T) {
	transcriber := new(MockTranscriber)
	svc := newTestService(transcriber, new(MockImageClassifier))

	_, err := svc.TranscribeSymptoms(context.Background(), Audio{Filename: "empty.webm"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	upstream := domain.NewAuthenticationError("whisper", 401, nil)
	transcriber.On("Transcribe", mock.Anything, "note.webm", mock.Anything, "").Return("", upstream)

	_, err = svc.TranscribeSymptoms(context.Background(), Audio{Filename: "note.webm", Data: []byte("x")})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuthentication))
}

func TestDiagnose_TranscriptDrivesFlags(t *testing.T) {
	classifier := new(MockImageClassifier)
	svc := newTestService(new(MockTranscriber), classifier)

	vitals := domain.DefaultVitals()
	vitals.Temperature = 38.5

	result, err := svc.Diagnose(context.Background(), &DiagnoseRequest{
		Vitals:     vitals,
		CanSmell:   true,
		Gender:     "female",
		Birthdate:  "1984-01-15",
		Transcript: "Since yesterday I cant smell anything",
	})
	require.NoError(t, err)

	assert.Equal(t, 40, result.Age)
	assert.False(t, result.Flags.CanSmell)
	assert.True(t, result.Observations.Fever)
	assert.False(t, result.ImagingProvided)
	assert.Equal(t, 0.72, result.Probabilities[domain.Covid19])
	assert.Equal(t, 0.05, result.Probabilities[domain.Pneumonia])
	classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestDiagnose_ImagingPositive(t *testing.T) {
	classifier := new(MockImageClassifier)
	classifier.On("Classify", mock.Anything, []byte("scan")).Return(true, nil)
	svc := newTestService(new(MockTranscriber), classifier)

	result, err := svc.Diagnose(context.Background(), &DiagnoseRequest{
		Image:     []byte("scan"),
		Vitals:    domain.DefaultVitals(),
		CanSmell:  true,
		Gender:    "female",
		Birthdate: "1994-01-01",
	})
	require.NoError(t, err)

	assert.Equal(t, 30, result.Age)
	assert.True(t, result.ImagingProvided)
	assert.True(t, result.ImagingPositive)
	assert.Equal(t, 0.30, result.Probabilities[domain.Covid19])
	assert.Equal(t, 0.95, result.Probabilities[domain.Pneumonia])
	classifier.AssertExpectations(t)
}

func TestDiagnose_AudioFallback(t *testing.T) {
	transcriber := new(MockTranscriber)
	transcriber.On("Transcribe", mock.Anything, "note.m4a", []byte("audio"), "").
		Return("mujhe khashi hai aur sar dard", nil)
	svc := newTestService(transcriber, new(MockImageClassifier))

	result, err := svc.Diagnose(context.Background(), &DiagnoseRequest{
		Vitals:    domain.DefaultVitals(),
		CanSmell:  true,
		Birthdate: "1979-03-02",
		Audio:     &Audio{Filename: "note.m4a", Data: []byte("audio")},
	})
	require.NoError(t, err)

	assert.Equal(t, "female", result.Gender)
	assert.True(t, result.Flags.HasCough)
	assert.True(t, result.Flags.HasHeadache)
	assert.Equal(t, "mujhe khashi hai aur sar dard", result.Transcript)
	transcriber.AssertExpectations(t)
}

func TestDiagnose_TypedTranscriptWinsOverAudio(t *testing.T) {
	transcriber := new(MockTranscriber)
	svc := newTestService(transcriber, new(MockImageClassifier))

	result, err := svc.Diagnose(context.Background(), &DiagnoseRequest{
		Vitals:     domain.DefaultVitals(),
		CanSmell:   true,
		Birthdate:  "1979-03-02",
		Transcript: "coughing all night",
		Audio:      &Audio{Filename: "note.m4a", Data: []byte("audio")},
	})
	require.NoError(t, err)
	assert.True(t, result.Flags.HasCough)
	transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDiagnose_ValidationBeforeUpstream(t *testing.T) {
	tests := []struct {
		name string
		req  DiagnoseRequest
	}{
		{
			name: "missing birthdate",
			req:  DiagnoseRequest{Vitals: domain.DefaultVitals()},
		},
		{
			name: "malformed birthdate",
			req:  DiagnoseRequest{Vitals: domain.DefaultVitals(), Birthdate: "15.01.1984"},
		},
		{
			name: "future birthdate",
			req:  DiagnoseRequest{Vitals: domain.DefaultVitals(), Birthdate: "2030-01-01"},
		},
		{
			name: "zero heart rate",
			req: DiagnoseRequest{
				Vitals:    domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 37, HeartRate: 0},
				Birthdate: "1984-01-15",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := new(MockImageClassifier)
			transcriber := new(MockTranscriber)
			svc := newTestService(transcriber, classifier)

			req := tt.req
			req.Image = []byte("scan")
			req.Audio = &Audio{Filename: "note.webm", Data: []byte("audio")}

			_, err := svc.Diagnose(context.Background(), &req)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindValidation))
			classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
			transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDiagnose_ClassifierFailure(t *testing.T) {
	classifier := new(MockImageClassifier)
	loadErr := domain.NewConfigurationError("imaging.endpoint is not set")
	classifier.On("Classify", mock.Anything, mock.Anything).Return(false, loadErr)
	svc := newTestService(new(MockTranscriber), classifier)

	_, err := svc.Diagnose(context.Background(), &DiagnoseRequest{
		Image:     []byte("scan"),
		Vitals:    domain.DefaultVitals(),
		Birthdate: "1984-01-15",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, loadErr))
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestMergeFlags(t *testing.T) {
	tests := []struct {
		name string
		form domain.VitalsFlags
		text domain.VitalsFlags
		want domain.VitalsFlags
	}{
		{
			name: "form only",
			form: domain.VitalsFlags{HasCough: true, CanSmell: true},
			text: domain.VitalsFlags{CanSmell: true},
			want: domain.VitalsFlags{HasCough: true, CanSmell: true},
		},
		{
			name: "text adds symptoms",
			form: domain.VitalsFlags{CanSmell: true},
			text: domain.VitalsFlags{HasHeadache: true, ChestPain: true, FeverSymptom: true, CanSmell: true},
			want: domain.VitalsFlags{HasHeadache: true, ChestPain: true, FeverSymptom: true, CanSmell: true},
		},
		{
			name: "text reports loss of smell",
			form: domain.VitalsFlags{CanSmell: true},
			text: domain.VitalsFlags{CanSmell: false},
			want: domain.VitalsFlags{CanSmell: false},
		},
		{
			name: "form reports loss of smell",
			form: domain.VitalsFlags{CanSmell: false},
			text: domain.VitalsFlags{CanSmell: true, Breathlessness: true},
			want: domain.VitalsFlags{CanSmell: false, Breathlessness: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeFlags(tt.form, tt.text))
		})
	}
}

func TestDiagnose_ExplicitVerdictSkipsClassifier(t *testing.T) {
	classifier := new(MockImageClassifier)
	svc := newTestService(new(MockTranscriber), classifier)

	positive := true
	result, err := svc.Diagnose(context.Background(), &DiagnoseRequest{
		Image:          []byte("scan"),
		ImagingVerdict: &positive,
		Vitals:         domain.DefaultVitals(),
		CanSmell:       true,
		Birthdate:      "1994-01-01",
	})
	require.NoError(t, err)

	assert.True(t, result.ImagingPositive)
	assert.Equal(t, 0.95, result.Probabilities[domain.Pneumonia])
	classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}
