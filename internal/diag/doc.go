// Package diag defines the warning model shared by the export-type engine.
//
// # Purpose
//
//   - Give every advisory finding (missing export, importers that disagree,
//     modules that were never loaded, exports that changed mid-build, cache
//     problems) a deterministic, serialisable record.
//   - Decouple producers from the host warning channel through Reporter.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity – Info, Warning or Error (severity.go).
//   - Code – numeric identifier with a stable ID ("CJS1001") and a
//     machine-readable Kind tag ("missing-export") tooling can filter on.
//   - Message – human text naming the exporter and importer, relative to the
//     project root.
//   - Subject – the participant module ids: exporter, importers and the
//     failed requirement ("default" or "names").
//   - Notes – optional extra context per module.
//
// # Emitting
//
// Producers call Reporter.Report directly or build a diagnostic with
// ReportWarning(...).WithNote(...).Emit(). BagReporter collects into a Bag,
// which supports sorting, deduplication and filtering; DedupReporter and
// MultiReporter compose reporters. Nothing in this package formats output
// for terminals, see internal/diagfmt.
package diag
