package diag

import "cjses/internal/project"

func New(sev Severity, code Code, subject Subject, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Subject:  subject,
		Message:  msg,
		Notes:    nil,
	}
}

func NewWarning(code Code, subject Subject, msg string) Diagnostic {
	return New(SevWarning, code, subject, msg)
}

func (d Diagnostic) WithNote(module project.ModuleID, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Module: module, Msg: msg})
	return d
}
