package symptoms

import "github.com/clinical-risk-fusion/internal/domain"

// Entry is one symptom key with the surface forms that denote it.
// Variants are lower case and matched as literal substrings of the normalized text.
type Entry struct {
	Key      domain.SymptomKey
	Variants []string
}

// DefaultLexicon covers English and transliterated Hindi/Urdu phrasings.
// Order matters: keys are reported in this order and variants are scanned in this order.
var DefaultLexicon = []Entry{
	{Key: domain.SymptomCough, Variants: []string{"cough", "coughing", "khashi", "sardi"}},
	{Key: domain.SymptomFever, Variants: []string{"fever", "febrile", "temperature is high", "jukam", "buqar"}},
	{Key: domain.SymptomChestPain, Variants: []string{"chest pain", "pain in chest", "tight chest", "chest tightness", "seena dard"}},
	{Key: domain.SymptomBreathlessness, Variants: []string{"shortness of breath", "breathless", "difficulty breathing", "dyspnea", "dyspnoea", "sans lai", "dimaagi"}},
	{Key: domain.SymptomHeadache, Variants: []string{"headache", "head pain", "migraine", "sar dard"}},
	{Key: domain.SymptomSoreThroat, Variants: []string{"sore throat", "throat pain", "throat hurts", "gala dard"}},
	{Key: domain.SymptomFatigue, Variants: []string{"fatigue", "tired", "weakness", "thakan", "kamzori"}},
	{Key: domain.SymptomLossOfSmell, Variants: []string{"loss of smell", "can’t smell", "cant smell", "anosmia", "ghrana khamoshi"}},
}

// DefaultNegationTemplates frame a term in a negating phrase.
// %s is replaced by the regexp-quoted variant.
var DefaultNegationTemplates = []string{
	`no\s+%s`,
	`not\s+%s`,
	`denies\s+%s`,
	`without\s+%s`,
	`nahi\s+%s`,
	`nahin\s+%s`,
	`do not have\s+%s`,
	`do not\s+%s`,
	`don't have\s+%s`,
	`don't\s+%s`,
}
