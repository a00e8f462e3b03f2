package engine

import (
	"context"
	"errors"

	"cjses/internal/exports"
	"cjses/internal/exporttype"
	"cjses/internal/project"
)

// ErrNotFound is returned by a Loader for modules that do not exist.
var ErrNotFound = errors.New("module not found")

// Module is a source file handed to the rewriter.
type Module struct {
	ID   project.ModuleID
	Code string
}

// Loader reads modules for Run.
type Loader interface {
	Load(ctx context.Context, id project.ModuleID) (Module, error)
}

// Oracle answers style questions for the module being rewritten.
type Oracle interface {
	// ImportStyle decides how the module imported as specifier should be
	// consumed.
	ImportStyle(ctx context.Context, specifier string) (exporttype.Decision, error)
	// ExportStyle decides the shape of the module's own export.
	ExportStyle(ctx context.Context) (exporttype.Decision, error)
}

// Discovered is one import found by the rewriter, not yet resolved.
type Discovered struct {
	Specifier   string
	Expectation exports.Expectation
}

// Rewrite is what the rewriter learned about one module.
type Rewrite struct {
	Code    string
	Touched bool
	Fact    exports.ExportFact
	Imports []Discovered
}

// Rewriter converts one module, consulting the oracle for every decision.
// Errors are fatal for that module only.
type Rewriter interface {
	Rewrite(ctx context.Context, mod Module, oracle Oracle) (*Rewrite, error)
}

// RewriterFunc adapts a function to Rewriter.
type RewriterFunc func(ctx context.Context, mod Module, oracle Oracle) (*Rewrite, error)

func (f RewriterFunc) Rewrite(ctx context.Context, mod Module, oracle Oracle) (*Rewrite, error) {
	return f(ctx, mod, oracle)
}
