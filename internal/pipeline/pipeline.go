// Package pipeline wires the stages that turn an untrusted question into
// tabular data: policy filtering, cache lookup, candidate production, safety
// validation, bounded execution, and cache store. Every stage boundary is a
// hard one; no stage assumes an earlier stage enforced its invariants.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/analytics"
	"github.com/tabletalk/tabletalk/internal/cache"
	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/execute"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/model"
	"github.com/tabletalk/tabletalk/internal/policy"
	"github.com/tabletalk/tabletalk/internal/producer"
	"github.com/tabletalk/tabletalk/internal/validate"
)

// AuditLog persists a record of every question handled, successful or not.
type AuditLog interface {
	Append(ctx context.Context, rec model.QueryLogRecord) error
}

// Deps collects the pipeline's collaborators. Explainer, Tracker, and Audit
// are optional; the rest are required.
type Deps struct {
	Catalog   *catalog.Catalog
	Policy    *policy.Policy
	Producer  *producer.Producer
	Executor  *execute.Executor
	Cache     *cache.Cache
	Explainer llm.Explainer
	Tracker   *analytics.Tracker
	Audit     AuditLog

	MaxLimit     int
	DefaultLimit int
	Logger       *slog.Logger
}

// Pipeline handles questions end to end.
type Pipeline struct {
	deps Deps
}

func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{deps: deps}
}

// HandleQuestion runs the full stage sequence for one question. On success
// the answer carries the executed SQL, the rows, and whether the cache served
// it. On failure the rejection carries a stable reason code and an actionable
// message; nothing here is ever fatal to the process.
func (p *Pipeline) HandleQuestion(ctx context.Context, id model.Identity, question string) (*model.Answer, *model.Rejection) {
	start := time.Now()

	q := strings.TrimSpace(question)
	if q == "" {
		return nil, &model.Rejection{
			Code:    model.ReasonEmptyQuestion,
			Message: "the question is empty; ask something about your data",
		}
	}

	snap, err := p.deps.Catalog.Snapshot(ctx)
	if err != nil {
		p.deps.Logger.Error("schema snapshot unavailable", "error", err)
		return nil, &model.Rejection{
			Code:    model.ReasonExecutionFailed,
			Message: "the database schema could not be loaded",
		}
	}

	filtered, allowed := p.deps.Policy.Resolve(id.Role, snap.Tables)
	if len(allowed) == 0 {
		return nil, &model.Rejection{
			Code:    model.ReasonNoAccessibleTables,
			Message: fmt.Sprintf("role %q has no accessible tables", id.Role),
		}
	}

	key := cache.Key(id.UserID, q)
	if e, ok := p.deps.Cache.Get(key); ok {
		p.deps.Logger.Debug("cache hit", "user_id", id.UserID)
		return &model.Answer{
			Question:    q,
			SQL:         e.SQL,
			Columns:     e.Columns,
			Rows:        e.Rows,
			RowCount:    len(e.Rows),
			Source:      e.Source,
			CacheHit:    true,
			Explanation: e.Explanation,
			LatencyMs:   msSince(start),
		}, nil
	}

	cand, rej := p.deps.Producer.Produce(ctx, q, filtered)
	if rej != nil {
		p.record(ctx, id, q, "", start, 0, rej)
		return nil, rej
	}

	sanitized, rej := validate.Validate(cand.SQL, allowed, p.deps.MaxLimit, p.deps.DefaultLimit)
	if rej != nil {
		p.deps.Logger.Info("candidate rejected",
			"user_id", id.UserID, "reason", rej.Code, "source", cand.Source)
		p.record(ctx, id, q, cand.SQL, start, 0, rej)
		return nil, rej
	}

	res, rej := p.deps.Executor.Run(ctx, sanitized)
	if rej != nil {
		// The statement was proven safe, so showing it costs nothing and
		// helps the caller understand what timed out.
		if rej.Code == model.ReasonExecutionTimeout && rej.Fragment == "" {
			rej.Fragment = sanitized
		}
		p.record(ctx, id, q, sanitized, start, 0, rej)
		return nil, rej
	}

	explanation := ""
	if p.deps.Explainer != nil {
		if ex, err := p.deps.Explainer.Explain(ctx, q, sanitized, res.Rows); err == nil {
			explanation = ex
		} else {
			p.deps.Logger.Debug("explanation unavailable", "error", err)
		}
	}

	p.deps.Cache.Put(key, cache.Entry{
		SQL:         sanitized,
		Columns:     res.Columns,
		Rows:        res.Rows,
		Source:      cand.Source,
		Explanation: explanation,
	})
	p.record(ctx, id, q, sanitized, start, len(res.Rows), nil)

	return &model.Answer{
		Question:    q,
		SQL:         sanitized,
		Columns:     res.Columns,
		Rows:        res.Rows,
		RowCount:    len(res.Rows),
		Source:      cand.Source,
		CacheHit:    false,
		Explanation: explanation,
		LatencyMs:   msSince(start),
	}, nil
}

// CacheStats reports the result cache state.
func (p *Pipeline) CacheStats() model.CacheStats {
	s := p.deps.Cache.Stats()
	return model.CacheStats{
		EntryCount: s.EntryCount,
		MaxEntries: s.MaxEntries,
		TTLSeconds: s.TTLSeconds,
		HitCount:   s.HitCount,
	}
}

// ClearCache drops every cached answer. Authorization is the transport
// layer's job; this method trusts its caller.
func (p *Pipeline) ClearCache() {
	p.deps.Cache.Clear()
	p.deps.Logger.Info("result cache cleared")
}

func (p *Pipeline) record(ctx context.Context, id model.Identity, question, sqlText string, start time.Time, rowCount int, rej *model.Rejection) {
	latency := msSince(start)
	status := "success"
	errMsg := ""
	if rej != nil {
		status = "rejected"
		errMsg = string(rej.Code)
	}

	if p.deps.Tracker != nil {
		p.deps.Tracker.Record(analytics.Record{
			UserID:    id.UserID,
			Question:  question,
			SQL:       sqlText,
			LatencyMs: latency,
			RowCount:  rowCount,
			Error:     errMsg,
		})
	}
	if p.deps.Audit != nil {
		rec := model.QueryLogRecord{
			UserID:    id.UserID,
			Question:  question,
			SQL:       sqlText,
			Status:    status,
			Error:     errMsg,
			LatencyMs: latency,
			RowCount:  rowCount,
		}
		if err := p.deps.Audit.Append(ctx, rec); err != nil {
			p.deps.Logger.Warn("audit log append failed", "error", err)
		}
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
