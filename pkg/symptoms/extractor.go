// Package symptoms implements a rule-based symptom extractor with negation
// handling for free-text (often voice-transcribed) patient descriptions.
package symptoms

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/clinical-risk-fusion/internal/domain"
)

const defaultPatternCacheSize = 512

// Extractor maps text to symptom flags. It holds no per-call state and is safe
// for concurrent use; compiled negation patterns are shared through an LRU cache.
type Extractor struct {
	lexicon   []Entry
	templates []string
	patterns  *lru.Cache[string, *regexp.Regexp]
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLexicon replaces the default lexicon
func WithLexicon(lexicon []Entry) Option {
	return func(e *Extractor) {
		e.lexicon = lexicon
	}
}

// WithNegationTemplates replaces the default negation frames
func WithNegationTemplates(templates []string) Option {
	return func(e *Extractor) {
		e.templates = templates
	}
}

// NewExtractor creates an extractor. Templates are validated up front so a
// malformed frame fails at construction rather than during extraction.
func NewExtractor(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		lexicon:   DefaultLexicon,
		templates: DefaultNegationTemplates,
	}
	for _, opt := range opts {
		opt(e)
	}

	cache, err := lru.New[string, *regexp.Regexp](defaultPatternCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating pattern cache: %w", err)
	}
	e.patterns = cache

	for _, tpl := range e.templates {
		if strings.Count(tpl, "%s") != 1 {
			return nil, fmt.Errorf("negation template %q must contain exactly one %%s", tpl)
		}
		if _, err := regexp.Compile(fmt.Sprintf(tpl, "x")); err != nil {
			return nil, fmt.Errorf("negation template %q: %w", tpl, err)
		}
	}
	for _, entry := range e.lexicon {
		if len(entry.Variants) == 0 {
			return nil, fmt.Errorf("symptom %q has no variants", entry.Key)
		}
	}

	return e, nil
}

var defaultExtractor = func() *Extractor {
	e, err := NewExtractor()
	if err != nil {
		panic(err)
	}
	return e
}()

// Default returns the shared extractor built from the default lexicon
func Default() *Extractor {
	return defaultExtractor
}

// Extract runs the default extractor
func Extract(text string) domain.SymptomFlags {
	return defaultExtractor.Extract(text)
}

// Normalize lower-cases text, trims it and collapses whitespace runs to one
// space. Unicode spaces (NBSP, thin, ideographic, NEL, \v) count as whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Extract returns a flag for every lexicon key.
//
// Variants are scanned in order and the scan ends at the first one found in
// the text: it is checked against every negation frame and that verdict is
// the symptom's. A later bare mention cannot undo an earlier negated one.
func (e *Extractor) Extract(text string) domain.SymptomFlags {
	normalized := Normalize(text)

	flags := make(domain.SymptomFlags, len(e.lexicon))
	for _, entry := range e.lexicon {
		present := false
		for _, variant := range entry.Variants {
			if !strings.Contains(normalized, variant) {
				continue
			}
			present = !e.isNegated(normalized, variant)
			break
		}
		flags[entry.Key] = present
	}
	return flags
}

func (e *Extractor) isNegated(text, variant string) bool {
	quoted := regexp.QuoteMeta(variant)
	for _, tpl := range e.templates {
		if e.pattern(fmt.Sprintf(tpl, quoted)).MatchString(text) {
			return true
		}
	}
	return false
}

func (e *Extractor) pattern(expr string) *regexp.Regexp {
	if re, ok := e.patterns.Get(expr); ok {
		return re
	}
	// Templates were checked in NewExtractor and the variant is quoted
	re := regexp.MustCompile(expr)
	e.patterns.Add(expr, re)
	return re
}

// ToVitalsFlags maps symptom flags onto the boolean set the fusion engine and
// vitals form share. A symptom missing from flags counts as absent.
func ToVitalsFlags(flags domain.SymptomFlags) domain.VitalsFlags {
	return domain.VitalsFlags{
		HasCough:       flags.Has(domain.SymptomCough),
		HasHeadache:    flags.Has(domain.SymptomHeadache),
		CanSmell:       !flags.Has(domain.SymptomLossOfSmell),
		Breathlessness: flags.Has(domain.SymptomBreathlessness),
		ChestPain:      flags.Has(domain.SymptomChestPain),
		FeverSymptom:   flags.Has(domain.SymptomFever),
	}
}

// Present lists the flagged symptoms in lexicon order
func (e *Extractor) Present(flags domain.SymptomFlags) []domain.SymptomKey {
	var keys []domain.SymptomKey
	for _, entry := range e.lexicon {
		if flags[entry.Key] {
			keys = append(keys, entry.Key)
		}
	}
	return keys
}
