package submission

// Outcome is what happened to one form slot during parsing
type Outcome int

const (
	Included Outcome = iota
	SkippedMissingFields
	SkippedCurrencyPolicy
)

func (o Outcome) String() string {
	switch o {
	case Included:
		return "included"
	case SkippedMissingFields:
		return "skipped_missing_fields"
	case SkippedCurrencyPolicy:
		return "skipped_currency_policy"
	default:
		return "unknown"
	}
}

// FormOutcome records the outcome for one form number
type FormOutcome struct {
	FormNumber int     `json:"form_number"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
}

// MarshalText encodes the outcome by name
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
