// Package domain contains the core entities of the clinical risk fusion pipeline:
// conditions, symptom keys, vitals, patient context and the per-condition
// probabilities produced by the fusion engine.
//
// Audio → transcript → symptom flags → (vitals, demographics, imaging verdict) → risk map.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Condition identifies a disease whose risk is estimated by the fusion engine
type Condition string

const (
	Covid19   Condition = "Covid-19"
	Pneumonia Condition = "Pneumonia"
)

// SymptomKey is the canonical identifier of a symptom recognised in free text
type SymptomKey string

const (
	SymptomCough          SymptomKey = "cough"
	SymptomFever          SymptomKey = "fever"
	SymptomChestPain      SymptomKey = "chest_pain"
	SymptomBreathlessness SymptomKey = "breathlessness"
	SymptomHeadache       SymptomKey = "headache"
	SymptomSoreThroat     SymptomKey = "sore_throat"
	SymptomFatigue        SymptomKey = "fatigue"
	SymptomLossOfSmell    SymptomKey = "loss_of_smell"
)

// AllSymptoms lists the symptom keys in lexicon declaration order
var AllSymptoms = []SymptomKey{
	SymptomCough,
	SymptomFever,
	SymptomChestPain,
	SymptomBreathlessness,
	SymptomHeadache,
	SymptomSoreThroat,
	SymptomFatigue,
	SymptomLossOfSmell,
}

// Feature is a binary observation consumed by the fusion engine.
// Features are either reported symptoms or derived from vitals.
type Feature string

const (
	FeatureCough         Feature = "cough"
	FeatureHeadache      Feature = "headache"
	FeatureLossOfSmell   Feature = "loss_of_smell"
	FeatureFever         Feature = "fever"
	FeatureHighHeartRate Feature = "high_heart_rate"
	FeatureHighBP        Feature = "high_bp"
)

// EngineFeatures is the fixed, stable order in which the fusion engine applies updates
var EngineFeatures = []Feature{
	FeatureCough,
	FeatureHeadache,
	FeatureLossOfSmell,
	FeatureFever,
	FeatureHighHeartRate,
	FeatureHighBP,
}

// SymptomFlags maps each symptom key to whether it was reported
type SymptomFlags map[SymptomKey]bool

// Has reports whether the symptom was flagged present
func (f SymptomFlags) Has(key SymptomKey) bool {
	return f[key]
}

// VitalsFlags is the boolean set the fusion engine and the vitals form share
type VitalsFlags struct {
	HasCough       bool `json:"has_cough"`
	HasHeadache    bool `json:"has_headache"`
	CanSmell       bool `json:"can_smell"`
	Breathlessness bool `json:"breathlessness"`
	ChestPain      bool `json:"chest_pain"`
	FeverSymptom   bool `json:"fever_symptom"`
}

// VitalReading is a structured vitals panel
type VitalReading struct {
	SystolicPressure  int     `json:"systolic_pressure"`  // mmHg
	DiastolicPressure int     `json:"diastolic_pressure"` // mmHg
	Temperature       float64 `json:"temperature"`        // °C
	HeartRate         int     `json:"heart_rate"`         // bpm
}

// Validate rejects readings that cannot come from a living patient
func (v VitalReading) Validate() error {
	if v.SystolicPressure <= 0 {
		return NewValidationError("systolicBP", "must be a positive integer", v.SystolicPressure)
	}
	if v.DiastolicPressure <= 0 {
		return NewValidationError("diastolicBP", "must be a positive integer", v.DiastolicPressure)
	}
	if v.HeartRate <= 0 {
		return NewValidationError("heartRate", "must be a positive integer", v.HeartRate)
	}
	if math.IsNaN(v.Temperature) || v.Temperature < 25 || v.Temperature > 45 {
		return NewValidationError("temperature", "must be between 25 and 45 °C", v.Temperature)
	}
	return nil
}

// DefaultVitals are the values assumed for omitted form fields
func DefaultVitals() VitalReading {
	return VitalReading{
		SystolicPressure:  120,
		DiastolicPressure: 80,
		Temperature:       37.0,
		HeartRate:         75,
	}
}

// PatientContext carries the demographics used by the fusion engine
type PatientContext struct {
	Age    float64 `json:"age"`
	Gender string  `json:"gender"`
}

// Validate checks that age is a usable number of years
func (p PatientContext) Validate() error {
	if math.IsNaN(p.Age) || math.IsInf(p.Age, 0) || p.Age < 0 {
		return NewValidationError("age", "must be a non-negative number of years", p.Age)
	}
	return nil
}

// Observations are the vitals-derived booleans, exposed for reporting
type Observations struct {
	Fever         bool `json:"fever"`
	HighHeartRate bool `json:"high_heart_rate"`
	HighBP        bool `json:"high_bp"`
}

// RiskMap holds the reported probability of each condition
type RiskMap map[Condition]float64

// String renders the map in a stable order for logs
func (r RiskMap) String() string {
	names := make([]string, 0, len(r))
	for condition := range r {
		names = append(names, string(condition))
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.2f", name, r[Condition(name)]))
	}
	return strings.Join(parts, " ")
}
