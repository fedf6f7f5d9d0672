package docai

import (
	"context"
	"strings"

	"docket/internal/document"
	"docket/internal/services"
)

// ClassifyInput carries the evidence handed to the classifier.
type ClassifyInput struct {
	FileName  string
	PageCount int
	Excerpt   string
}

// ExtractInput carries the evidence handed to the extractor.
type ExtractInput struct {
	FileName string
	Excerpt  string
}

type classifyResult struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify asks the model to categorize a document. Unrecognized type names
// collapse to unknown; out-of-range confidence values are clamped.
func (c *Client) Classify(ctx context.Context, input ClassifyInput) (document.Classification, error) {
	if strings.TrimSpace(input.Excerpt) == "" {
		return document.Classification{}, services.Wrap(services.ErrValidation, "docai", "classify", "document excerpt is empty", nil)
	}
	content, err := c.CompleteJSON(ctx, classifySystemPrompt, classifyUserPrompt(input.FileName, input.PageCount, input.Excerpt))
	if err != nil {
		return document.Classification{}, err
	}
	var parsed classifyResult
	if err := DecodeJSON(content, &parsed); err != nil {
		return document.Classification{}, services.Wrap(services.ErrExternalService, "docai", "classify", "unusable classifier response", err)
	}
	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return document.Classification{
		Type:       document.ParseType(parsed.Type),
		Confidence: conf,
		Reasoning:  strings.TrimSpace(parsed.Reasoning),
	}, nil
}

// Extract asks the model for the structured fields of a classified document.
// The document type selects the prompt and the payload variant.
func (c *Client) Extract(ctx context.Context, docType document.Type, input ExtractInput) (*document.Payload, error) {
	systemPrompt, ok := extractSystemPrompts[docType]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "docai", "extract", "type "+string(docType)+" has no extraction schema", nil)
	}
	if strings.TrimSpace(input.Excerpt) == "" {
		return nil, services.Wrap(services.ErrValidation, "docai", "extract", "document excerpt is empty", nil)
	}
	content, err := c.CompleteJSON(ctx, systemPrompt, extractUserPrompt(input.FileName, input.Excerpt))
	if err != nil {
		return nil, err
	}

	payload := &document.Payload{Type: docType}
	var target any
	switch docType {
	case document.TypeInvoice:
		payload.Invoice = &document.InvoiceData{}
		target = payload.Invoice
	case document.TypeStatement:
		payload.Statement = &document.StatementData{}
		target = payload.Statement
	case document.TypeLetter:
		payload.Letter = &document.LetterData{}
		target = payload.Letter
	}
	if err := DecodeJSON(content, target); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "docai", "extract", "unusable extractor response", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "docai", "extract", "invalid extraction payload", err)
	}
	return payload, nil
}
