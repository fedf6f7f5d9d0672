package document

import "strings"

// Type is the classified category of a document. Unknown is a first-class
// value, not an error: low-confidence or unclassifiable documents are still
// archived, they just skip structured extraction.
type Type string

const (
	TypeInvoice   Type = "invoice"
	TypeStatement Type = "bank_statement"
	TypeLetter    Type = "government_letter"
	TypeUnknown   Type = "unknown"
)

// Types lists every valid document type.
func Types() []Type {
	return []Type{TypeInvoice, TypeStatement, TypeLetter, TypeUnknown}
}

// ParseType maps free-form classifier output onto a known type. Shorthand
// labels some models emit are accepted as aliases; anything unrecognized
// collapses to unknown rather than failing the stage.
func ParseType(raw string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeInvoice:
		return TypeInvoice
	case TypeStatement, "statement":
		return TypeStatement
	case TypeLetter, "letter":
		return TypeLetter
	default:
		return TypeUnknown
	}
}

// Valid reports whether t is one of the declared types.
func (t Type) Valid() bool {
	switch t {
	case TypeInvoice, TypeStatement, TypeLetter, TypeUnknown:
		return true
	}
	return false
}

// Extractable reports whether documents of this type carry structured fields
// worth extracting.
func (t Type) Extractable() bool {
	return t.Valid() && t != TypeUnknown
}

// Classification is the outcome of the classify stage as recorded on the
// document. PossibleType preserves the classifier's best guess when the
// stage degraded and the stored type fell back to unknown.
type Classification struct {
	Type         Type
	Confidence   float64
	Reasoning    string
	PossibleType Type
}

// Gate decides whether a document proceeds to structured extraction. The
// effective type is unknown whenever confidence falls below threshold, even
// if the classifier named a concrete type.
func Gate(c Classification, threshold float64) (effective Type, eligible bool) {
	effective = c.Type
	if !effective.Valid() {
		effective = TypeUnknown
	}
	if c.Confidence < threshold {
		effective = TypeUnknown
	}
	return effective, effective.Extractable()
}
