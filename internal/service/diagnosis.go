package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/fusion"
	"github.com/clinical-risk-fusion/pkg/symptoms"
)

// Audio is an uploaded voice note
type Audio struct {
	Filename string
	Data     []byte
	Language string
}

// TranscriptionResult is the outcome of a voice note run through the pipeline
type TranscriptionResult struct {
	Provider    string              `json:"provider"`
	Transcript  string              `json:"transcript"`
	Symptoms    domain.SymptomFlags `json:"symptoms"`
	VitalsFlags domain.VitalsFlags  `json:"vitals_flags"`
}

// DiagnoseRequest carries one multimodal assessment. Image, Transcript and
// Audio are all optional; an absent image counts as a negative verdict.
// ImagingVerdict, when set, is used as is and Image is ignored.
type DiagnoseRequest struct {
	Image          []byte
	ImagingVerdict *bool
	Vitals         domain.VitalReading
	HasCough       bool
	HasHeadache    bool
	CanSmell       bool
	Gender         string
	Birthdate      string
	Transcript     string
	Audio          *Audio
}

// DiagnosisResult is returned to the web and MCP layers
type DiagnosisResult struct {
	Probabilities   domain.RiskMap      `json:"probabilities"`
	Age             int                 `json:"age"`
	Gender          string              `json:"gender"`
	Vitals          domain.VitalReading `json:"vitals"`
	Observations    domain.Observations `json:"observations"`
	Flags           domain.VitalsFlags  `json:"flags"`
	Symptoms        domain.SymptomFlags `json:"symptoms,omitempty"`
	Transcript      string              `json:"transcript,omitempty"`
	ImagingProvided bool                `json:"imaging_provided"`
	ImagingPositive bool                `json:"imaging_positive"`
}

// DiagnosisService runs the risk fusion pipeline for one request at a time.
// It keeps nothing between calls.
type DiagnosisService struct {
	logger      *logrus.Logger
	transcriber domain.Transcriber
	classifier  domain.ImageClassifier
	extractor   domain.SymptomExtractor
	engine      *fusion.Engine
	now         func() time.Time
}

// NewDiagnosisService creates a new diagnosis service
func NewDiagnosisService(
	logger *logrus.Logger,
	transcriber domain.Transcriber,
	classifier domain.ImageClassifier,
	extractor domain.SymptomExtractor,
	engine *fusion.Engine,
) *DiagnosisService {
	return &DiagnosisService{
		logger:      logger,
		transcriber: transcriber,
		classifier:  classifier,
		extractor:   extractor,
		engine:      engine,
		now:         time.Now,
	}
}

// WithClock replaces the clock used to derive age from birthdate
func (s *DiagnosisService) WithClock(now func() time.Time) *DiagnosisService {
	s.now = now
	return s
}

// TranscriberName reports the selected provider
func (s *DiagnosisService) TranscriberName() string {
	return s.transcriber.Name()
}

// TranscriberConfigured reports whether the selected provider has credentials
func (s *DiagnosisService) TranscriberConfigured() bool {
	return s.transcriber.IsConfigured()
}

// ExtractSymptoms runs the extractor on text
func (s *DiagnosisService) ExtractSymptoms(text string) (domain.SymptomFlags, domain.VitalsFlags) {
	flags := s.extractor.Extract(text)
	return flags, symptoms.ToVitalsFlags(flags)
}

// TranscribeSymptoms transcribes a voice note and extracts its symptoms
func (s *DiagnosisService) TranscribeSymptoms(ctx context.Context, audio Audio) (*TranscriptionResult, error) {
	if len(audio.Data) == 0 {
		return nil, domain.NewValidationError("audio", "no audio provided", audio.Filename)
	}

	s.logger.WithFields(logrus.Fields{
		"provider": s.transcriber.Name(),
		"file":     audio.Filename,
		"bytes":    len(audio.Data),
		"language": audio.Language,
	}).Info("Transcribing voice note")

	transcript, err := s.transcriber.Transcribe(ctx, audio.Filename, audio.Data, audio.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe %s: %w", audio.Filename, err)
	}

	flags, vitalsFlags := s.ExtractSymptoms(transcript)
	return &TranscriptionResult{
		Provider:    s.transcriber.Name(),
		Transcript:  transcript,
		Symptoms:    flags,
		VitalsFlags: vitalsFlags,
	}, nil
}

// Diagnose validates the request, gathers the imaging verdict and reported
// symptoms, and runs the fusion engine
func (s *DiagnosisService) Diagnose(ctx context.Context, req *DiagnoseRequest) (*DiagnosisResult, error) {
	startTime := time.Now()

	// Cheap validation first so bad input never costs an upstream call
	if err := req.Vitals.Validate(); err != nil {
		return nil, err
	}
	birth, err := domain.ParseBirthdate(req.Birthdate)
	if err != nil {
		return nil, err
	}
	age, err := domain.AgeAt(birth, s.now())
	if err != nil {
		return nil, err
	}
	gender := strings.TrimSpace(req.Gender)
	if gender == "" {
		gender = "female"
	}

	result := &DiagnosisResult{
		Age:    age,
		Gender: gender,
		Vitals: req.Vitals,
	}

	switch {
	case req.ImagingVerdict != nil:
		result.ImagingProvided = true
		result.ImagingPositive = *req.ImagingVerdict
	case len(req.Image) > 0:
		positive, err := s.classifier.Classify(ctx, req.Image)
		if err != nil {
			return nil, fmt.Errorf("failed to classify image: %w", err)
		}
		result.ImagingProvided = true
		result.ImagingPositive = positive
	}

	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" && req.Audio != nil && len(req.Audio.Data) > 0 {
		transcribed, err := s.TranscribeSymptoms(ctx, *req.Audio)
		if err != nil {
			return nil, err
		}
		transcript = transcribed.Transcript
	}

	flags := domain.VitalsFlags{
		HasCough:    req.HasCough,
		HasHeadache: req.HasHeadache,
		CanSmell:    req.CanSmell,
	}
	if transcript != "" {
		extracted, fromText := s.ExtractSymptoms(transcript)
		flags = mergeFlags(flags, fromText)
		result.Symptoms = extracted
		result.Transcript = transcript
	}
	result.Flags = flags
	result.Observations = fusion.Observe(req.Vitals)

	risks, err := s.engine.Calculate(fusion.Input{
		Vitals:          req.Vitals,
		Flags:           flags,
		Patient:         domain.PatientContext{Age: float64(age), Gender: gender},
		ImagingPositive: result.ImagingPositive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to calculate risk: %w", err)
	}
	result.Probabilities = risks

	s.logger.WithFields(logrus.Fields{
		"age":              age,
		"imaging_provided": result.ImagingProvided,
		"imaging_positive": result.ImagingPositive,
		"has_transcript":   transcript != "",
		"risks":            risks.String(),
		"duration_ms":      time.Since(startTime).Milliseconds(),
	}).Info("Diagnosis completed")

	return result, nil
}

// mergeFlags combines form answers with symptoms found in text. A symptom
// reported either way counts; smell is lost if either source says so.
func mergeFlags(form, text domain.VitalsFlags) domain.VitalsFlags {
	return domain.VitalsFlags{
		HasCough:       form.HasCough || text.HasCough,
		HasHeadache:    form.HasHeadache || text.HasHeadache,
		CanSmell:       form.CanSmell && text.CanSmell,
		Breathlessness: form.Breathlessness || text.Breathlessness,
		ChestPain:      form.ChestPain || text.ChestPain,
		FeverSymptom:   form.FeverSymptom || text.FeverSymptom,
	}
}
