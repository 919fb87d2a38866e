// Package knowledge holds the static, read-only probability tables used by the
// fusion engine: per-condition priors, per-feature likelihoods and population
// base rates. A Base is validated once when it is built and never mutated after,
// so one instance can be shared by every request.
package knowledge

import (
	"fmt"
	"math"
	"sort"

	"github.com/clinical-risk-fusion/internal/domain"
)

// ConditionDefinition describes one condition in a serialisable form
type ConditionDefinition struct {
	Name        domain.Condition           `yaml:"name" json:"name"`
	Prior       float64                    `yaml:"prior" json:"prior"`
	Likelihoods map[domain.Feature]float64 `yaml:"likelihoods" json:"likelihoods"`
}

// Definition is the raw content of a knowledge base before validation
type Definition struct {
	Conditions []ConditionDefinition      `yaml:"conditions" json:"conditions"`
	BaseRates  map[domain.Feature]float64 `yaml:"base_rates" json:"base_rates"`
}

// RequiredConditions must be present because the imaging override targets them
var RequiredConditions = []domain.Condition{domain.Covid19, domain.Pneumonia}

// Base is an immutable, validated knowledge base
type Base struct {
	conditions  []domain.Condition
	priors      map[domain.Condition]float64
	likelihoods map[domain.Condition]map[domain.Feature]float64
	baseRates   map[domain.Feature]float64
}

// DefaultDefinition returns the built-in population figures
func DefaultDefinition() Definition {
	return Definition{
		Conditions: []ConditionDefinition{
			{
				Name:  domain.Covid19,
				Prior: 0.05,
				Likelihoods: map[domain.Feature]float64{
					domain.FeatureCough:         0.65,
					domain.FeatureHeadache:      0.60,
					domain.FeatureLossOfSmell:   0.70,
					domain.FeatureFever:         0.75,
					domain.FeatureHighHeartRate: 0.40,
					domain.FeatureHighBP:        0.30,
				},
			},
			{
				Name:  domain.Pneumonia,
				Prior: 0.03,
				Likelihoods: map[domain.Feature]float64{
					domain.FeatureCough:         0.80,
					domain.FeatureHeadache:      0.35,
					domain.FeatureLossOfSmell:   0.10,
					domain.FeatureFever:         0.80,
					domain.FeatureHighHeartRate: 0.60,
					domain.FeatureHighBP:        0.25,
				},
			},
		},
		BaseRates: map[domain.Feature]float64{
			domain.FeatureCough:         0.15,
			domain.FeatureHeadache:      0.25,
			domain.FeatureLossOfSmell:   0.10,
			domain.FeatureFever:         0.05,
			domain.FeatureHighHeartRate: 0.10,
			domain.FeatureHighBP:        0.20,
		},
	}
}

// Default builds the knowledge base from the built-in figures
func Default() *Base {
	base, err := New(DefaultDefinition())
	if err != nil {
		panic(fmt.Sprintf("built-in knowledge base is invalid: %v", err))
	}
	return base
}

// New validates def and builds an immutable Base from a deep copy of it
func New(def Definition) (*Base, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}

	base := &Base{
		conditions:  make([]domain.Condition, 0, len(def.Conditions)),
		priors:      make(map[domain.Condition]float64, len(def.Conditions)),
		likelihoods: make(map[domain.Condition]map[domain.Feature]float64, len(def.Conditions)),
		baseRates:   make(map[domain.Feature]float64, len(def.BaseRates)),
	}

	for _, cond := range def.Conditions {
		base.conditions = append(base.conditions, cond.Name)
		base.priors[cond.Name] = cond.Prior
		table := make(map[domain.Feature]float64, len(cond.Likelihoods))
		for feature, p := range cond.Likelihoods {
			table[feature] = p
		}
		base.likelihoods[cond.Name] = table
	}
	for feature, rate := range def.BaseRates {
		base.baseRates[feature] = rate
	}

	return base, nil
}

// Validate checks every figure lies strictly inside (0,1) and that the tables
// cover every engine feature for every condition
func Validate(def Definition) error {
	if len(def.Conditions) == 0 {
		return domain.NewConfigurationError("knowledge base defines no conditions")
	}

	seen := make(map[domain.Condition]bool, len(def.Conditions))
	for _, cond := range def.Conditions {
		if cond.Name == "" {
			return domain.NewConfigurationError("knowledge base has a condition without a name")
		}
		if seen[cond.Name] {
			return domain.NewConfigurationError(fmt.Sprintf("condition %q is defined twice", cond.Name))
		}
		seen[cond.Name] = true

		if err := checkOpenUnit(fmt.Sprintf("prior of %s", cond.Name), cond.Prior); err != nil {
			return err
		}
		for _, feature := range domain.EngineFeatures {
			p, ok := cond.Likelihoods[feature]
			if !ok {
				return domain.NewConfigurationError(fmt.Sprintf("condition %q has no likelihood for feature %q", cond.Name, feature))
			}
			if err := checkOpenUnit(fmt.Sprintf("likelihood of %s given %s", feature, cond.Name), p); err != nil {
				return err
			}
		}
		for feature := range cond.Likelihoods {
			if !isEngineFeature(feature) {
				return domain.NewConfigurationError(fmt.Sprintf("condition %q references unknown feature %q", cond.Name, feature))
			}
		}
	}

	for _, required := range RequiredConditions {
		if !seen[required] {
			return domain.NewConfigurationError(fmt.Sprintf("knowledge base must define condition %q", required))
		}
	}

	for _, feature := range domain.EngineFeatures {
		rate, ok := def.BaseRates[feature]
		if !ok {
			return domain.NewConfigurationError(fmt.Sprintf("no base rate for feature %q", feature))
		}
		if err := checkOpenUnit(fmt.Sprintf("base rate of %s", feature), rate); err != nil {
			return err
		}
	}
	for feature := range def.BaseRates {
		if !isEngineFeature(feature) {
			return domain.NewConfigurationError(fmt.Sprintf("base rate given for unknown feature %q", feature))
		}
	}

	return nil
}

func checkOpenUnit(what string, p float64) error {
	if math.IsNaN(p) || p <= 0 || p >= 1 {
		return domain.NewConfigurationError(fmt.Sprintf("%s must lie strictly between 0 and 1, got %v", what, p))
	}
	return nil
}

func isEngineFeature(feature domain.Feature) bool {
	for _, f := range domain.EngineFeatures {
		if f == feature {
			return true
		}
	}
	return false
}

// Conditions returns the registered conditions in definition order
func (b *Base) Conditions() []domain.Condition {
	out := make([]domain.Condition, len(b.conditions))
	copy(out, b.conditions)
	return out
}

// Prior returns P(condition)
func (b *Base) Prior(condition domain.Condition) (float64, error) {
	p, ok := b.priors[condition]
	if !ok {
		return 0, domain.NewConfigurationError(fmt.Sprintf("unregistered condition %q", condition))
	}
	return p, nil
}

// Likelihood returns P(feature | condition)
func (b *Base) Likelihood(condition domain.Condition, feature domain.Feature) (float64, error) {
	table, ok := b.likelihoods[condition]
	if !ok {
		return 0, domain.NewConfigurationError(fmt.Sprintf("unregistered condition %q", condition))
	}
	p, ok := table[feature]
	if !ok {
		return 0, domain.NewConfigurationError(fmt.Sprintf("no likelihood for feature %q given %q", feature, condition))
	}
	return p, nil
}

// BaseRate returns P(feature) in the general population
func (b *Base) BaseRate(feature domain.Feature) (float64, error) {
	rate, ok := b.baseRates[feature]
	if !ok {
		return 0, domain.NewConfigurationError(fmt.Sprintf("unregistered feature %q", feature))
	}
	return rate, nil
}

// Definition returns a copy of the tables, e.g. for export
func (b *Base) Definition() Definition {
	def := Definition{
		Conditions: make([]ConditionDefinition, 0, len(b.conditions)),
		BaseRates:  make(map[domain.Feature]float64, len(b.baseRates)),
	}
	for _, name := range b.conditions {
		table := make(map[domain.Feature]float64, len(b.likelihoods[name]))
		for feature, p := range b.likelihoods[name] {
			table[feature] = p
		}
		def.Conditions = append(def.Conditions, ConditionDefinition{
			Name:        name,
			Prior:       b.priors[name],
			Likelihoods: table,
		})
	}
	for feature, rate := range b.baseRates {
		def.BaseRates[feature] = rate
	}
	return def
}

// Summary lists the conditions alphabetically, for logging
func (b *Base) Summary() []string {
	names := make([]string, 0, len(b.conditions))
	for _, c := range b.conditions {
		names = append(names, fmt.Sprintf("%s(prior=%.3f)", c, b.priors[c]))
	}
	sort.Strings(names)
	return names
}
