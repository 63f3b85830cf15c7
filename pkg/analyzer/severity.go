package analyzer

// Severity is the ordinal strength of a finding. The zero value is
// SeverityNormal, so unknown severity labels sort lowest instead of
// being rejected; rule documents are free to carry labels the engine
// does not rank.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// ParseSeverity maps a severity label to its ordinal. Matching is exact:
// anything but the five known labels maps to SeverityNormal.
func ParseSeverity(label string) Severity {
	switch label {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityNormal
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "normal"
	}
}
