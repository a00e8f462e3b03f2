package diag

import (
	"cjses/internal/project"
)

// Subject names the modules a diagnostic is about.
type Subject struct {
	Exporter  project.ModuleID
	Importers []project.ModuleID
	// Requirement is "default" or "names" for missing-export findings.
	Requirement string
}

type Note struct {
	Module project.ModuleID
	Msg    string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Subject  Subject
	Notes    []Note
}

// Kind is shorthand for d.Code.Kind().
func (d Diagnostic) Kind() string {
	return d.Code.Kind()
}
