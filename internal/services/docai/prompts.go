package docai

import (
	"fmt"
	"strings"

	"docket/internal/document"
)

const classifySystemPrompt = `You are a document classification assistant for a scanned-document archive.
Classify the document into exactly one of these types: invoice, bank_statement, government_letter, unknown.

Definitions:
- invoice: a bill requesting payment, with line items or a total amount due.
- bank_statement: a periodic account summary from a bank, card issuer, or utility.
- government_letter: official correspondence addressed to a person or organization.
- unknown: anything else, or when the text is too sparse to decide.

Respond with a single JSON object:
{"type": "<invoice|bank_statement|government_letter|unknown>", "confidence": <0.0-1.0>, "reasoning": "<one short sentence>"}

The confidence must reflect how certain you are, not how readable the scan is.
Do not invent a type when the evidence is weak; prefer unknown with low confidence.`

var extractSystemPrompts = map[document.Type]string{
	document.TypeInvoice: `You extract structured fields from invoice text.
Respond with a single JSON object:
{"vendor": "<issuer name>", "invoice_number": "<identifier>", "invoice_date": "<YYYY-MM-DD>", "due_date": "<YYYY-MM-DD or empty>", "total_amount": <number>, "currency": "<ISO 4217 code>", "tax_amount": <number or 0>}
Use empty strings and 0 for fields the text does not state. Never guess amounts.`,

	document.TypeStatement: `You extract structured fields from account statement text.
Respond with a single JSON object:
{"institution": "<issuer name>", "account_number": "<identifier, may be partially masked>", "period_start": "<YYYY-MM-DD>", "period_end": "<YYYY-MM-DD>", "opening_balance": <number>, "closing_balance": <number>, "currency": "<ISO 4217 code>"}
Use empty strings and 0 for fields the text does not state. Never guess balances.`,

	document.TypeLetter: `You extract structured fields from correspondence text.
Respond with a single JSON object:
{"sender": "<who wrote it>", "recipient": "<who it addresses, or empty>", "date": "<YYYY-MM-DD or empty>", "subject": "<topic in a few words>", "summary": "<one or two sentences>"}
Use empty strings for fields the text does not state.`,
}

func classifyUserPrompt(fileName string, pageCount int, excerpt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File name: %s\n", fileName)
	if pageCount > 0 {
		fmt.Fprintf(&b, "Pages: %d\n", pageCount)
	}
	b.WriteString("Document text:\n")
	b.WriteString(excerpt)
	return b.String()
}

func extractUserPrompt(fileName, excerpt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File name: %s\n", fileName)
	b.WriteString("Document text:\n")
	b.WriteString(excerpt)
	return b.String()
}
