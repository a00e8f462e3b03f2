package diag

// Severity ranks a finding. Export-type findings are warnings; nothing the
// checker produces stops a build on its own.
type Severity uint8

const (
	SevInfo Severity = iota
	// SevWarning is the severity of every checker and cache finding.
	SevWarning
	// SevError is only reached through Escalate.
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Label is the lower-case form used by short output and golden files.
func (s Severity) Label() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

// SarifLevel maps s onto a SARIF result level.
func (s Severity) SarifLevel() string {
	if s == SevInfo {
		return "note"
	}
	return s.Label()
}

// Escalate raises warnings to errors when warningsAsErrors is set.
func (s Severity) Escalate(warningsAsErrors bool) Severity {
	if warningsAsErrors && s == SevWarning {
		return SevError
	}
	return s
}
