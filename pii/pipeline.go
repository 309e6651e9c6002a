package pii

import (
	"context"
	"fmt"
	"strings"

	"secure-llm-assistant/errs"
)

// TextScanner is the detection dependency of the pipeline. *Scanner
// satisfies it; tests may substitute their own.
type TextScanner interface {
	Scan(text string) []Finding
}

// AuditLogger receives redaction audit lines. Findings are logged as
// category and span only, never the matched text.
type AuditLogger interface {
	Info(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Result is the outcome of one redaction pass. Findings holds the
// spans that were masked, relative to the original text.
type Result struct {
	Redacted string
	Findings []Finding
}

// Pipeline gates outbound messages and inbound documents through the
// scanner. Both call sites share one instance so there is no bypass
// path. On any internal failure it fails closed: the caller gets an
// error and must not forward the content.
type Pipeline struct {
	scanner TextScanner
	log     AuditLogger
}

// NewPipeline creates the redaction pipeline.
func NewPipeline(scanner TextScanner, log AuditLogger) *Pipeline {
	return &Pipeline{scanner: scanner, log: log}
}

// Redact masks every detected span with a category placeholder like
// [REDACTED:SSN]. Clean input comes back unchanged. The scan runs as a
// cancellable unit of work; if ctx is cancelled before it completes,
// no result is produced and the gated operation must not proceed.
func (p *Pipeline) Redact(ctx context.Context, text string) (*Result, error) {
	type outcome struct {
		result *Result
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errs.RedactionFailure(fmt.Errorf("scanner panic: %v", r))}
			}
		}()
		done <- outcome{result: p.redact(text)}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			p.log.Info("redaction failed closed: %v", out.err)
			return nil, out.err
		}
		p.audit(out.result)
		return out.result, nil
	}
}

// redact performs the synchronous masking pass.
func (p *Pipeline) redact(text string) *Result {
	findings := p.scanner.Scan(text)
	if len(findings) == 0 {
		return &Result{Redacted: text}
	}

	// Findings arrive ordered by start with pattern priority as the
	// tiebreaker. Keep the first finding of any overlapping group and
	// drop the rest, then rebuild the text front to back.
	kept := findings[:0]
	lastEnd := 0
	for _, f := range findings {
		if f.Start < lastEnd {
			continue
		}
		kept = append(kept, f)
		lastEnd = f.End
	}

	var b strings.Builder
	prev := 0
	for _, f := range kept {
		b.WriteString(text[prev:f.Start])
		b.WriteString(placeholder(f.Category))
		prev = f.End
	}
	b.WriteString(text[prev:])

	return &Result{Redacted: b.String(), Findings: kept}
}

// audit logs what was masked without reproducing any of it.
func (p *Pipeline) audit(res *Result) {
	if len(res.Findings) == 0 {
		return
	}
	p.log.Info("redacted %d sensitive span(s)", len(res.Findings))
	for _, f := range res.Findings {
		p.log.Debug("redacted %s at [%d:%d]", f.Category, f.Start, f.End)
	}
}

func placeholder(c Category) string {
	return "[REDACTED:" + string(c) + "]"
}
