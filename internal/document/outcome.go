package document

// FinalOutcome is the resting state the finalize stage assigns once metadata
// persistence succeeded.
type FinalOutcome string

const (
	OutcomeProcessed        FinalOutcome = "processed"
	OutcomeRejected         FinalOutcome = "rejected"
	OutcomeExtractionFailed FinalOutcome = "extraction_failed"
)

// DecideOutcome picks the terminal status for a document. Extraction errors
// win over everything else; documents that were never eligible for
// extraction, or yielded nothing, are rejected; only a document with a real
// payload counts as processed.
func DecideOutcome(effective Type, payload *Payload, extractionErr string) FinalOutcome {
	if extractionErr != "" {
		return OutcomeExtractionFailed
	}
	if !effective.Extractable() || payload.Empty() {
		return OutcomeRejected
	}
	return OutcomeProcessed
}
