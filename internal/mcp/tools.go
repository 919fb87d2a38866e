package mcp

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/service"
	"github.com/clinical-risk-fusion/internal/transcription"
)

// ExtractSymptomsInput is the argument of extract_symptoms
type ExtractSymptomsInput struct {
	Text string `json:"text" jsonschema:"free-text symptom description, English or transliterated Hindi/Urdu"`
}

// ExtractSymptomsOutput is the result of extract_symptoms
type ExtractSymptomsOutput struct {
	Symptoms    domain.SymptomFlags `json:"symptoms"`
	VitalsFlags domain.VitalsFlags  `json:"vitals_flags"`
}

// CalculateRiskInput is the argument of calculate_risk. Zero vitals take the
// nurse form defaults.
type CalculateRiskInput struct {
	Birthdate       string  `json:"birthdate" jsonschema:"patient birthdate as YYYY-MM-DD or MM/DD/YYYY"`
	Gender          string  `json:"gender,omitempty" jsonschema:"patient gender, defaults to female"`
	SystolicBP      int     `json:"systolic_bp,omitempty" jsonschema:"systolic pressure in mmHg, default 120"`
	DiastolicBP     int     `json:"diastolic_bp,omitempty" jsonschema:"diastolic pressure in mmHg, default 80"`
	Temperature     float64 `json:"temperature,omitempty" jsonschema:"body temperature in degrees Celsius, default 37.0"`
	HeartRate       int     `json:"heart_rate,omitempty" jsonschema:"heart rate in bpm, default 75"`
	HasCough        bool    `json:"has_cough,omitempty"`
	HasHeadache     bool    `json:"has_headache,omitempty"`
	LossOfSmell     bool    `json:"loss_of_smell,omitempty" jsonschema:"patient reports loss of smell or taste"`
	ImagingPositive bool    `json:"imaging_positive,omitempty" jsonschema:"chest scan classifier reported pneumonia"`
	Transcript      string  `json:"transcript,omitempty" jsonschema:"optional symptom description merged with the flags above"`
}

// TranscribeAudioInput is the argument of transcribe_audio
type TranscribeAudioInput struct {
	Filename    string `json:"filename" jsonschema:"original file name, its extension selects the audio MIME type"`
	AudioBase64 string `json:"audio_base64" jsonschema:"base64 encoded audio bytes"`
	Language    string `json:"language,omitempty" jsonschema:"optional language code such as en or hi"`
}

// TranscriptionStatusOutput is the result of transcription_status
type TranscriptionStatusOutput struct {
	Selected   string                 `json:"selected"`
	Configured bool                   `json:"configured"`
	Providers  []transcription.Status `json:"providers"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "extract_symptoms",
		Description: "Detect symptom mentions and their negation in free text",
	}, s.handleExtractSymptoms)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "calculate_risk",
		Description: "Fuse vitals, reported symptoms, demographics and an imaging verdict into Covid-19 and Pneumonia probabilities",
	}, s.handleCalculateRisk)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "transcribe_audio",
		Description: "Transcribe a voice note with the configured speech-to-text provider and extract its symptoms",
	}, s.handleTranscribeAudio)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "transcription_status",
		Description: "Report the selected speech-to-text provider and which providers have credentials",
	}, s.handleTranscriptionStatus)

	s.logger.WithField("tool_count", 4).Debug("Registered MCP tools")
}

func (s *Server) handleExtractSymptoms(ctx context.Context, req *mcp.CallToolRequest, in ExtractSymptomsInput) (*mcp.CallToolResult, ExtractSymptomsOutput, error) {
	s.logger.WithField("tool", "extract_symptoms").Info("Tool invoked")

	flags, vitalsFlags := s.diagnosis.ExtractSymptoms(in.Text)
	return nil, ExtractSymptomsOutput{Symptoms: flags, VitalsFlags: vitalsFlags}, nil
}

func (s *Server) handleCalculateRisk(ctx context.Context, req *mcp.CallToolRequest, in CalculateRiskInput) (*mcp.CallToolResult, service.DiagnosisResult, error) {
	start := time.Now()

	vitals := domain.DefaultVitals()
	if in.SystolicBP != 0 {
		vitals.SystolicPressure = in.SystolicBP
	}
	if in.DiastolicBP != 0 {
		vitals.DiastolicPressure = in.DiastolicBP
	}
	if in.Temperature != 0 {
		vitals.Temperature = in.Temperature
	}
	if in.HeartRate != 0 {
		vitals.HeartRate = in.HeartRate
	}

	imaging := in.ImagingPositive
	result, err := s.diagnosis.Diagnose(ctx, &service.DiagnoseRequest{
		ImagingVerdict: &imaging,
		Vitals:         vitals,
		HasCough:       in.HasCough,
		HasHeadache:    in.HasHeadache,
		CanSmell:       !in.LossOfSmell,
		Gender:         in.Gender,
		Birthdate:      in.Birthdate,
		Transcript:     in.Transcript,
	})
	if err != nil {
		s.logger.WithError(err).WithField("tool", "calculate_risk").Warn("Tool failed")
		return nil, service.DiagnosisResult{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"tool":        "calculate_risk",
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Tool completed")
	return nil, *result, nil
}

func (s *Server) handleTranscribeAudio(ctx context.Context, req *mcp.CallToolRequest, in TranscribeAudioInput) (*mcp.CallToolResult, service.TranscriptionResult, error) {
	audio, err := base64.StdEncoding.DecodeString(in.AudioBase64)
	if err != nil {
		return nil, service.TranscriptionResult{}, domain.NewValidationError("audio_base64", "must be standard base64", nil)
	}

	result, err := s.diagnosis.TranscribeSymptoms(ctx, service.Audio{
		Filename: in.Filename,
		Data:     audio,
		Language: in.Language,
	})
	if err != nil {
		s.logger.WithError(err).WithField("tool", "transcribe_audio").Warn("Tool failed")
		return nil, service.TranscriptionResult{}, err
	}
	return nil, *result, nil
}

func (s *Server) handleTranscriptionStatus(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, TranscriptionStatusOutput, error) {
	return nil, TranscriptionStatusOutput{
		Selected:   s.diagnosis.TranscriberName(),
		Configured: s.diagnosis.TranscriberConfigured(),
		Providers:  transcription.Statuses(s.config.Transcription),
	}, nil
}
