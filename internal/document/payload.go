package document

import (
	"encoding/json"
	"fmt"
)

// InvoiceData is the structured payload extracted from invoices.
type InvoiceData struct {
	Vendor        string  `json:"vendor"`
	InvoiceNumber string  `json:"invoice_number"`
	InvoiceDate   string  `json:"invoice_date"`
	DueDate       string  `json:"due_date,omitempty"`
	TotalAmount   float64 `json:"total_amount"`
	Currency      string  `json:"currency"`
	TaxAmount     float64 `json:"tax_amount,omitempty"`
}

// StatementData is the structured payload extracted from account statements.
type StatementData struct {
	Institution    string  `json:"institution"`
	AccountNumber  string  `json:"account_number"`
	PeriodStart    string  `json:"period_start"`
	PeriodEnd      string  `json:"period_end"`
	OpeningBalance float64 `json:"opening_balance"`
	ClosingBalance float64 `json:"closing_balance"`
	Currency       string  `json:"currency"`
}

// LetterData is the structured payload extracted from correspondence.
type LetterData struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	Date      string `json:"date"`
	Subject   string `json:"subject"`
	Summary   string `json:"summary,omitempty"`
}

// Payload wraps one extracted variant together with its type tag so the
// result round-trips through a single JSON column.
type Payload struct {
	Type      Type           `json:"type"`
	Invoice   *InvoiceData   `json:"invoice,omitempty"`
	Statement *StatementData `json:"statement,omitempty"`
	Letter    *LetterData    `json:"letter,omitempty"`
}

// Empty reports whether the payload carries no extracted data.
func (p *Payload) Empty() bool {
	return p == nil || (p.Invoice == nil && p.Statement == nil && p.Letter == nil)
}

// Validate checks that the tag matches the populated variant.
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("nil payload")
	}
	switch p.Type {
	case TypeInvoice:
		if p.Invoice == nil {
			return fmt.Errorf("invoice payload missing invoice data")
		}
	case TypeStatement:
		if p.Statement == nil {
			return fmt.Errorf("statement payload missing statement data")
		}
	case TypeLetter:
		if p.Letter == nil {
			return fmt.Errorf("letter payload missing letter data")
		}
	default:
		return fmt.Errorf("payload type %q is not extractable", p.Type)
	}
	return nil
}

// EncodePayload serializes a payload for storage on the registry record.
func EncodePayload(p *Payload) (string, error) {
	if p == nil {
		return "", nil
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload restores a stored payload. An empty string decodes to nil.
func DecodePayload(raw string) (*Payload, error) {
	if raw == "" {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
