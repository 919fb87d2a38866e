package knowledge

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clinical-risk-fusion/internal/domain"
)

// ParseYAML decodes and validates a knowledge base document.
// Unknown keys are rejected so a misspelt feature name fails at load time.
func ParseYAML(data []byte) (*Base, error) {
	var def Definition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&def); err != nil {
		return nil, &domain.RiskError{
			Kind:    domain.KindConfiguration,
			Message: "knowledge base document is not valid YAML",
			Err:     err,
		}
	}
	return New(def)
}

// LoadYAML reads a knowledge base document from path
func LoadYAML(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.RiskError{
			Kind:    domain.KindConfiguration,
			Message: fmt.Sprintf("reading knowledge base file %s", path),
			Err:     err,
		}
	}
	return ParseYAML(data)
}

// MarshalYAML renders the knowledge base as a document ParseYAML accepts
func (b *Base) MarshalYAML() (interface{}, error) {
	return b.Definition(), nil
}
