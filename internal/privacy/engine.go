package privacy

import "context"

// Engine is the capability surface shared by the pattern-based redactor
// and the statistical redactor. Callers pick an implementation once at
// construction time; the two are interchangeable afterwards.
type Engine interface {
	// Redact replaces detected PII spans with bracketed tokens and
	// returns the per-call metadata. Empty input is returned unchanged
	// with no session state created.
	Redact(ctx context.Context, text, sessionID string) (string, *Metadata, error)
	// Restore replaces every bracketed token known to the session with
	// its original value. Read-only.
	Restore(ctx context.Context, text, sessionID string) (string, error)
	// Stats reports the session's accumulated token counts by category.
	Stats(ctx context.Context, sessionID string) (Stats, error)
	// ExportMap returns the full token mapping and stats for audits.
	ExportMap(ctx context.Context, sessionID string) (ExportRecord, error)
	// ClearSession discards all redaction state for the session.
	ClearSession(ctx context.Context, sessionID string) error
}
