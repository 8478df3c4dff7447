// Package producer turns a natural-language question into one candidate SQL
// statement. Two branches exist: generation via an external engine, and a
// deterministic template matcher over the visible schema. Generation failure
// degrades silently to the template branch; only when neither branch can
// produce a candidate does the caller see a rejection.
package producer

import (
	"context"
	"log/slog"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/model"
)

// Candidate sources. The tag travels with the answer so callers can tell a
// model-written query from a pattern-matched one.
const (
	SourceGenerated = "generated"
	SourceTemplate  = "template"
)

// Candidate is an unvalidated SQL statement plus the branch that produced it.
type Candidate struct {
	SQL    string
	Source string
}

// Producer selects between the generation and template branches.
type Producer struct {
	engine llm.Client
	logger *slog.Logger
}

// New creates a producer. engine may be nil, in which case only the template
// branch is used.
func New(engine llm.Client, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{engine: engine, logger: logger}
}

// Produce returns a candidate for the question against the given schema. The
// schema must already be filtered to what the caller may see; the producer
// never consults anything outside it. A nil rejection means a candidate was
// produced; the candidate is not yet validated.
func (p *Producer) Produce(ctx context.Context, question string, schema map[string]model.Table) (Candidate, *model.Rejection) {
	if p.engine != nil {
		sql, err := p.engine.GenerateSQL(ctx, question, catalog.FormatForPrompt(schema))
		if err == nil {
			return Candidate{SQL: sql, Source: SourceGenerated}, nil
		}
		// Engine trouble is an operational event, not a user error. The
		// caller never sees it; the template branch takes over.
		p.logger.Warn("generation engine failed, falling back to template", "error", err)
	}

	sql, ok := FromTemplate(question, schema)
	if !ok {
		return Candidate{}, &model.Rejection{
			Code:    model.ReasonTemplateUnmatched,
			Message: "could not understand the question; try naming a table and what you want from it, e.g. \"how many rows in sales\" or \"total amount by region in sales\"",
		}
	}
	return Candidate{SQL: sql, Source: SourceTemplate}, nil
}
