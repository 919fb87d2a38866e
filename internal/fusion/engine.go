// Package fusion combines vitals, reported symptoms, demographics and an imaging
// verdict into per-condition risk probabilities with a sequential Bayesian update.
//
// Features are treated as conditionally independent and the running value is not
// renormalised against a joint posterior, so intermediate values may leave [0,1].
// Only the reported figure is clamped.
package fusion

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/knowledge"
)

// Vitals thresholds; a reading strictly above the threshold is flagged
const (
	FeverThreshold         = 37.8 // °C
	HighHeartRateThreshold = 90   // bpm
	HighSystolicThreshold  = 130  // mmHg
	HighDiastolicThreshold = 90   // mmHg
)

// Adjustment constants
const (
	AgeBaseLikelihood   = 0.3
	AgeLikelihoodSpan   = 0.5
	AgeSaturationYears  = 80.0
	MaleLikelihoodRatio = 1.2

	ImagingPneumoniaProbability = 0.95
	CovidGivenPneumonia         = 0.30

	ReportCeiling = 0.95
)

// Input is everything one risk calculation needs
type Input struct {
	Vitals          domain.VitalReading
	Flags           domain.VitalsFlags
	Patient         domain.PatientContext
	ImagingPositive bool
}

// Engine runs the fusion over a shared, read-only knowledge base
type Engine struct {
	kb     *knowledge.Base
	logger *logrus.Logger
}

// NewEngine creates a fusion engine
func NewEngine(kb *knowledge.Base, logger *logrus.Logger) *Engine {
	return &Engine{
		kb:     kb,
		logger: logger,
	}
}

// Observe derives the vitals booleans
func Observe(v domain.VitalReading) domain.Observations {
	return domain.Observations{
		Fever:         v.Temperature > FeverThreshold,
		HighHeartRate: v.HeartRate > HighHeartRateThreshold,
		HighBP:        v.SystolicPressure > HighSystolicThreshold || v.DiastolicPressure > HighDiastolicThreshold,
	}
}

// Features assembles the engine features. Fever comes from the thermometer
// reading only; a reported fever symptom does not set it.
func Features(v domain.VitalReading, flags domain.VitalsFlags) map[domain.Feature]bool {
	obs := Observe(v)
	return map[domain.Feature]bool{
		domain.FeatureCough:         flags.HasCough,
		domain.FeatureHeadache:      flags.HasHeadache,
		domain.FeatureLossOfSmell:   !flags.CanSmell,
		domain.FeatureFever:         obs.Fever,
		domain.FeatureHighHeartRate: obs.HighHeartRate,
		domain.FeatureHighBP:        obs.HighBP,
	}
}

// Calculate returns the reported probability of every registered condition.
// Each value lies in [0, 0.95] and is rounded to two decimals. It has no side
// effects, so equal inputs always give equal outputs.
func (e *Engine) Calculate(in Input) (domain.RiskMap, error) {
	if err := in.Patient.Validate(); err != nil {
		return nil, err
	}

	features := Features(in.Vitals, in.Flags)
	posteriors := make(map[domain.Condition]float64)

	for _, condition := range e.kb.Conditions() {
		p, err := e.kb.Prior(condition)
		if err != nil {
			return nil, err
		}

		for _, feature := range domain.EngineFeatures {
			p, err = e.update(condition, feature, features[feature], p)
			if err != nil {
				return nil, err
			}
		}

		p, err = adjustForAge(p, in.Patient.Age)
		if err != nil {
			return nil, fmt.Errorf("age adjustment for %s: %w", condition, err)
		}

		if isMale(in.Patient.Gender) {
			p, err = adjustForMale(p)
			if err != nil {
				return nil, fmt.Errorf("gender adjustment for %s: %w", condition, err)
			}
		}

		posteriors[condition] = p
	}

	if in.ImagingPositive {
		posteriors[domain.Pneumonia] = ImagingPneumoniaProbability
		posteriors[domain.Covid19] = math.Max(posteriors[domain.Covid19], CovidGivenPneumonia)
	}

	risks := make(domain.RiskMap, len(posteriors))
	for condition, p := range posteriors {
		risks[condition] = report(p)
	}

	e.logger.WithFields(logrus.Fields{
		"risks":            risks.String(),
		"imaging_positive": in.ImagingPositive,
		"age":              in.Patient.Age,
	}).Debug("Risk fusion completed")

	return risks, nil
}

func (e *Engine) update(condition domain.Condition, feature domain.Feature, present bool, p float64) (float64, error) {
	likelihood, err := e.kb.Likelihood(condition, feature)
	if err != nil {
		return 0, err
	}
	baseRate, err := e.kb.BaseRate(feature)
	if err != nil {
		return 0, err
	}

	num, den := likelihood, baseRate
	if !present {
		num, den = 1-likelihood, 1-baseRate
	}
	next, err := divide(p*num, den)
	if err != nil {
		return 0, fmt.Errorf("update of %s on %s: %w", condition, feature, err)
	}

	e.logger.WithFields(logrus.Fields{
		"condition": condition,
		"feature":   feature,
		"present":   present,
		"posterior": next,
	}).Trace("Applied feature update")

	return next, nil
}

func adjustForAge(p, age float64) (float64, error) {
	l := AgeBaseLikelihood + AgeLikelihoodSpan*math.Min(1, age/AgeSaturationYears)
	return divide(p*l, p*l+(1-p)*(1-l))
}

func adjustForMale(p float64) (float64, error) {
	return divide(p*MaleLikelihoodRatio, p*MaleLikelihoodRatio+(1-p))
}

// isMale matches "male" in any case; surrounding spaces do not match
func isMale(gender string) bool {
	return strings.EqualFold(gender, "male")
}

func divide(num, den float64) (float64, error) {
	if den == 0 {
		return 0, domain.NewNumericDomainError(fmt.Sprintf("division by zero (numerator %v)", num))
	}
	q := num / den
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, domain.NewNumericDomainError(fmt.Sprintf("non-finite value %v/%v", num, den))
	}
	return q, nil
}

func report(p float64) float64 {
	p = math.Max(0, math.Min(ReportCeiling, p))
	return math.Round(p*100) / 100
}
