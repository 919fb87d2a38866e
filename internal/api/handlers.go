package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/service"
	"github.com/clinical-risk-fusion/internal/transcription"
)

// ExtractRequest is the JSON body of /api/symptoms/extract
type ExtractRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"transcription": gin.H{
			"provider":   s.diagnosis.TranscriberName(),
			"configured": s.diagnosis.TranscriberConfigured(),
		},
	})
}

// handleUploadScan scores a scan plus the vitals form. The image is required.
func (s *Server) handleUploadScan(c *gin.Context) {
	image, _, err := s.readUpload(c, "image")
	if err != nil {
		respondError(c, err)
		return
	}
	if image == nil {
		respondError(c, domain.NewValidationError("image", "No image file provided", nil))
		return
	}

	req, err := parseDiagnoseForm(c)
	if err != nil {
		respondError(c, err)
		return
	}
	req.Image = image

	result, err := s.diagnosis.Diagnose(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{"age": result.Age}
	for condition, p := range result.Probabilities {
		body[string(condition)] = p
	}
	c.JSON(http.StatusCreated, body)
}

// handleMultimodalDiagnosis accepts any mix of scan, typed transcript and
// voice note alongside the vitals form
func (s *Server) handleMultimodalDiagnosis(c *gin.Context) {
	image, _, err := s.readUpload(c, "image")
	if err != nil {
		respondError(c, err)
		return
	}
	audio, audioName, err := s.readUpload(c, "audio")
	if err != nil {
		respondError(c, err)
		return
	}

	req, err := parseDiagnoseForm(c)
	if err != nil {
		respondError(c, err)
		return
	}
	req.Image = image
	req.Transcript = c.PostForm("transcript")
	if audio != nil {
		req.Audio = &service.Audio{
			Filename: audioName,
			Data:     audio,
			Language: strings.TrimSpace(c.PostForm("language")),
		}
	}

	result, err := s.diagnosis.Diagnose(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleTranscribeSymptoms transcribes a voice note and extracts symptoms
func (s *Server) handleTranscribeSymptoms(c *gin.Context) {
	audio, filename, err := s.readUpload(c, "audio")
	if err != nil {
		respondError(c, err)
		return
	}
	if audio == nil {
		respondError(c, domain.NewValidationError("audio", "No audio file provided", nil))
		return
	}

	result, err := s.diagnosis.TranscribeSymptoms(c.Request.Context(), service.Audio{
		Filename: filename,
		Data:     audio,
		Language: strings.TrimSpace(c.PostForm("language")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleExtractSymptoms runs the extractor on typed text
func (s *Server) handleExtractSymptoms(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("text", "text is required", nil))
		return
	}

	flags, vitalsFlags := s.diagnosis.ExtractSymptoms(req.Text)
	c.JSON(http.StatusOK, gin.H{
		"symptoms":     flags,
		"vitals_flags": vitalsFlags,
	})
}

// handleTranscriptionStatus reports which providers have credentials
func (s *Server) handleTranscriptionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"selected":   s.diagnosis.TranscriberName(),
		"configured": s.diagnosis.TranscriberConfigured(),
		"providers":  transcription.Statuses(s.config.Transcription),
	})
}

// readUpload returns the bytes of a multipart file field, or nil when the
// field is absent
func (s *Server) readUpload(c *gin.Context, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, "", nil
		}
		return nil, "", domain.NewValidationError(field, fmt.Sprintf("could not read upload: %v", err), nil)
	}

	limit := s.config.Server.MaxUploadBytes
	if header.Size > limit {
		return nil, "", domain.NewValidationError(field, fmt.Sprintf("file exceeds %d bytes", limit), header.Size)
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, "", domain.NewValidationError(field, "file is empty", header.Filename)
	}
	return data, header.Filename, nil
}

// parseDiagnoseForm reads the vitals form. Omitted fields take the defaults
// of the nurse form; present but non-numeric fields are rejected.
func parseDiagnoseForm(c *gin.Context) (*service.DiagnoseRequest, error) {
	defaults := domain.DefaultVitals()

	systolic, err := intField(c, "systolicBP", defaults.SystolicPressure)
	if err != nil {
		return nil, err
	}
	diastolic, err := intField(c, "diastolicBP", defaults.DiastolicPressure)
	if err != nil {
		return nil, err
	}
	temperature, err := floatField(c, "temperature", defaults.Temperature)
	if err != nil {
		return nil, err
	}
	heartRate, err := intField(c, "heartRate", defaults.HeartRate)
	if err != nil {
		return nil, err
	}

	return &service.DiagnoseRequest{
		Vitals: domain.VitalReading{
			SystolicPressure:  systolic,
			DiastolicPressure: diastolic,
			Temperature:       temperature,
			HeartRate:         heartRate,
		},
		HasCough:    boolField(c, "hasCough", false),
		HasHeadache: boolField(c, "hasHeadaches", false),
		CanSmell:    boolField(c, "canSmellTaste", true),
		Gender:      c.DefaultPostForm("gender", "female"),
		Birthdate:   c.PostForm("birthdate"),
	}, nil
}

func intField(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetPostForm(name)
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer", raw)
	}
	return v, nil
}

func floatField(c *gin.Context, name string, def float64) (float64, error) {
	raw, ok := c.GetPostForm(name)
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be a number", raw)
	}
	return v, nil
}

// boolField follows the form convention: only "true" is true
func boolField(c *gin.Context, name string, def bool) bool {
	raw, ok := c.GetPostForm(name)
	if !ok {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}
