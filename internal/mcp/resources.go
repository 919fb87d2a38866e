package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"

	"github.com/clinical-risk-fusion/pkg/symptoms"
)

const (
	knowledgeURI = "risk://knowledge-base"
	lexiconURI   = "risk://symptom-lexicon"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         knowledgeURI,
		Name:        "knowledge-base",
		Description: "Priors, likelihoods and base rates used by calculate_risk",
		MIMEType:    "application/yaml",
	}, s.readKnowledgeBase)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         lexiconURI,
		Name:        "symptom-lexicon",
		Description: "Surface forms recognised for each symptom key",
		MIMEType:    "application/yaml",
	}, s.readLexicon)
}

func (s *Server) readKnowledgeBase(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	data, err := yaml.Marshal(s.kb)
	if err != nil {
		return nil, fmt.Errorf("failed to render knowledge base: %w", err)
	}
	return yamlResource(knowledgeURI, data), nil
}

func (s *Server) readLexicon(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	lexicon := make(map[string][]string, len(symptoms.DefaultLexicon))
	for _, entry := range symptoms.DefaultLexicon {
		lexicon[string(entry.Key)] = entry.Variants
	}
	data, err := yaml.Marshal(lexicon)
	if err != nil {
		return nil, fmt.Errorf("failed to render lexicon: %w", err)
	}
	return yamlResource(lexiconURI, data), nil
}

func yamlResource(uri string, data []byte) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/yaml", Text: string(data)},
		},
	}
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        "triage_assessment",
		Description: "Walk through a respiratory triage using the risk tools",
		Arguments: []*mcp.PromptArgument{
			{Name: "symptoms", Description: "what the patient reports, in their words", Required: true},
			{Name: "birthdate", Description: "patient birthdate, YYYY-MM-DD"},
		},
	}, s.triagePrompt)
}

func (s *Server) triagePrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	reported := strings.TrimSpace(req.Params.Arguments["symptoms"])
	if reported == "" {
		return nil, fmt.Errorf("argument %q is required", "symptoms")
	}
	birthdate := strings.TrimSpace(req.Params.Arguments["birthdate"])
	if birthdate == "" {
		birthdate = "ask the clinician"
	}

	var b strings.Builder
	b.WriteString("Assess this patient for Covid-19 and Pneumonia risk.\n\n")
	fmt.Fprintf(&b, "Reported symptoms: %s\n", reported)
	fmt.Fprintf(&b, "Birthdate: %s\n\n", birthdate)
	b.WriteString("1. Call extract_symptoms on the reported symptoms and list what was found and what was negated.\n")
	b.WriteString("2. Collect vitals (blood pressure, temperature, heart rate), gender and any chest scan verdict.\n")
	b.WriteString("3. Call calculate_risk with the vitals, the symptom text as transcript and the scan verdict.\n")
	b.WriteString("4. Report both probabilities, noting they are capped at 0.95 and are decision support only.\n")

	return &mcp.GetPromptResult{
		Description: "Respiratory triage assessment",
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: b.String()}},
		},
	}, nil
}
