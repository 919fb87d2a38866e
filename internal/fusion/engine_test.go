package fusion

import (
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-risk-fusion/internal/domain"
	"github.com/clinical-risk-fusion/internal/knowledge"
)

func newTestEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during tests
	return NewEngine(knowledge.Default(), logger)
}

func normalVitals() domain.VitalReading {
	return domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 37.0, HeartRate: 75}
}

func TestObserve(t *testing.T) {
	tests := []struct {
		name   string
		vitals domain.VitalReading
		want   domain.Observations
	}{
		{"normal", normalVitals(), domain.Observations{}},
		{"fever threshold is exclusive", domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 37.8, HeartRate: 75}, domain.Observations{}},
		{"fever", domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 37.9, HeartRate: 75}, domain.Observations{Fever: true}},
		{"heart rate threshold is exclusive", domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 37, HeartRate: 90}, domain.Observations{}},
		{"tachycardia", domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 37, HeartRate: 91}, domain.Observations{HighHeartRate: true}},
		{"systolic only", domain.VitalReading{SystolicPressure: 131, DiastolicPressure: 80, Temperature: 37, HeartRate: 75}, domain.Observations{HighBP: true}},
		{"diastolic only", domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 91, Temperature: 37, HeartRate: 75}, domain.Observations{HighBP: true}},
		{"bp thresholds are exclusive", domain.VitalReading{SystolicPressure: 130, DiastolicPressure: 90, Temperature: 37, HeartRate: 75}, domain.Observations{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Observe(tt.vitals))
		})
	}
}

func TestFeatures_FeverSymptomDoesNotSetFever(t *testing.T) {
	features := Features(normalVitals(), domain.VitalsFlags{FeverSymptom: true, CanSmell: false})
	assert.False(t, features[domain.FeatureFever])
	assert.True(t, features[domain.FeatureLossOfSmell])
}

func TestCalculate(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name  string
		input Input
		want  domain.RiskMap
	}{
		{
			name: "no evidence young female",
			input: Input{
				Vitals:  normalVitals(),
				Flags:   domain.VitalsFlags{CanSmell: true},
				Patient: domain.PatientContext{Age: 30, Gender: "female"},
			},
			want: domain.RiskMap{domain.Covid19: 0, domain.Pneumonia: 0},
		},
		{
			name: "cough and headache with normal vitals",
			input: Input{
				Vitals:  normalVitals(),
				Flags:   domain.VitalsFlags{HasCough: true, HasHeadache: true, CanSmell: true},
				Patient: domain.PatientContext{Age: 45, Gender: "female"},
			},
			want: domain.RiskMap{domain.Covid19: 0.04, domain.Pneumonia: 0.03},
		},
		{
			name: "loss of smell with fever",
			input: Input{
				Vitals:  domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 38.5, HeartRate: 75},
				Flags:   domain.VitalsFlags{CanSmell: false},
				Patient: domain.PatientContext{Age: 40, Gender: "female"},
			},
			want: domain.RiskMap{domain.Covid19: 0.72, domain.Pneumonia: 0.05},
		},
		{
			name: "male adjustment is case insensitive",
			input: Input{
				Vitals:  domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 38.5, HeartRate: 75},
				Flags:   domain.VitalsFlags{CanSmell: false},
				Patient: domain.PatientContext{Age: 50, Gender: "MALE"},
			},
			want: domain.RiskMap{domain.Covid19: 0.80, domain.Pneumonia: 0.07},
		},
		{
			name: "intermediate values above one are clamped",
			input: Input{
				Vitals:  domain.VitalReading{SystolicPressure: 120, DiastolicPressure: 80, Temperature: 38.5, HeartRate: 100},
				Flags:   domain.VitalsFlags{HasCough: true, CanSmell: true},
				Patient: domain.PatientContext{Age: 60, Gender: "male"},
			},
			want: domain.RiskMap{domain.Covid19: 0.95, domain.Pneumonia: 0.95},
		},
		{
			name: "positive imaging with no other evidence",
			input: Input{
				Vitals:          normalVitals(),
				Flags:           domain.VitalsFlags{CanSmell: true},
				Patient:         domain.PatientContext{Age: 30, Gender: "female"},
				ImagingPositive: true,
			},
			want: domain.RiskMap{domain.Covid19: 0.30, domain.Pneumonia: 0.95},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Calculate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate_EndToEndScenario(t *testing.T) {
	engine := newTestEngine()

	input := Input{
		Vitals: domain.VitalReading{SystolicPressure: 140, DiastolicPressure: 95, Temperature: 38.0, HeartRate: 95},
		Flags: domain.VitalsFlags{
			HasCough:       true,
			HasHeadache:    true,
			CanSmell:       true,
			Breathlessness: true,
			ChestPain:      true,
			FeverSymptom:   true,
		},
		Patient:         domain.PatientContext{Age: 70, Gender: "male"},
		ImagingPositive: true,
	}

	got, err := engine.Calculate(input)
	require.NoError(t, err)

	assert.Equal(t, 0.95, got[domain.Pneumonia])
	assert.GreaterOrEqual(t, got[domain.Covid19], 0.30)
	assert.LessOrEqual(t, got[domain.Covid19], 0.95)
}

func TestCalculate_ImagingOverrideAlwaysHolds(t *testing.T) {
	engine := newTestEngine()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		input := randomInput(rng)
		input.ImagingPositive = true

		got, err := engine.Calculate(input)
		require.NoError(t, err)
		assert.Equal(t, 0.95, got[domain.Pneumonia])
		assert.GreaterOrEqual(t, got[domain.Covid19], 0.30)
	}
}

func TestCalculate_BoundsAndIdempotence(t *testing.T) {
	engine := newTestEngine()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		input := randomInput(rng)

		first, err := engine.Calculate(input)
		require.NoError(t, err)
		second, err := engine.Calculate(input)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, 2)
		for condition, p := range first {
			assert.GreaterOrEqual(t, p, 0.0, "%s for %+v", condition, input)
			assert.LessOrEqual(t, p, 0.95, "%s for %+v", condition, input)
			assert.Equal(t, math.Round(p*100)/100, p)
		}
	}
}

func TestCalculate_InvalidAge(t *testing.T) {
	engine := newTestEngine()

	for _, age := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := engine.Calculate(Input{
			Vitals:  normalVitals(),
			Flags:   domain.VitalsFlags{CanSmell: true},
			Patient: domain.PatientContext{Age: age},
		})
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	}
}

func TestCalculate_UsesCustomKnowledgeBase(t *testing.T) {
	def := knowledge.DefaultDefinition()
	def.Conditions = append(def.Conditions, knowledge.ConditionDefinition{
		Name:  "Influenza",
		Prior: 0.08,
		Likelihoods: map[domain.Feature]float64{
			domain.FeatureCough:         0.70,
			domain.FeatureHeadache:      0.65,
			domain.FeatureLossOfSmell:   0.05,
			domain.FeatureFever:         0.85,
			domain.FeatureHighHeartRate: 0.45,
			domain.FeatureHighBP:        0.20,
		},
	})
	kb, err := knowledge.New(def)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	engine := NewEngine(kb, logger)

	got, err := engine.Calculate(Input{
		Vitals:  normalVitals(),
		Flags:   domain.VitalsFlags{CanSmell: true},
		Patient: domain.PatientContext{Age: 30, Gender: "female"},
	})
	require.NoError(t, err)
	assert.Contains(t, got, domain.Condition("Influenza"))
	assert.Len(t, got, 3)
}

func TestNumericGuards(t *testing.T) {
	_, err := divide(1, 0)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNumericDomain))

	_, err = divide(math.Inf(1), 1)
	assert.True(t, domain.IsKind(err, domain.KindNumericDomain))

	_, err = adjustForAge(math.NaN(), 40)
	assert.True(t, domain.IsKind(err, domain.KindNumericDomain))

	_, err = adjustForMale(math.NaN())
	assert.True(t, domain.IsKind(err, domain.KindNumericDomain))

	q, err := divide(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 0.25, q)
}

func TestIsMale(t *testing.T) {
	tests := []struct {
		gender string
		want   bool
	}{
		{"male", true},
		{"MALE", true},
		{"Male", true},
		{" male ", false},
		{"male\n", false},
		{"female", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isMale(tt.gender), "%q", tt.gender)
	}
}

func TestReport(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.2, 0},
		{0, 0},
		{0.004, 0},
		{0.126, 0.13},
		{0.95, 0.95},
		{1.7, 0.95},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, report(tt.in))
	}
}

func randomInput(rng *rand.Rand) Input {
	genders := []string{"male", "female", "Male", "other", ""}
	return Input{
		Vitals: domain.VitalReading{
			SystolicPressure:  80 + rng.Intn(120),
			DiastolicPressure: 50 + rng.Intn(70),
			Temperature:       35 + rng.Float64()*6,
			HeartRate:         40 + rng.Intn(120),
		},
		Flags: domain.VitalsFlags{
			HasCough:       rng.Intn(2) == 0,
			HasHeadache:    rng.Intn(2) == 0,
			CanSmell:       rng.Intn(2) == 0,
			Breathlessness: rng.Intn(2) == 0,
			ChestPain:      rng.Intn(2) == 0,
			FeverSymptom:   rng.Intn(2) == 0,
		},
		Patient: domain.PatientContext{
			Age:    rng.Float64() * 110,
			Gender: genders[rng.Intn(len(genders))],
		},
	}
}
