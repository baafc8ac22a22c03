package privacy

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/recognizer"
)

const methodStatistical = "statistical"

// entityDescriptions maps recognizer labels to the human-readable
// descriptions reported in metadata.
var entityDescriptions = map[string]string{
	LabelEmail:      "Email address",
	LabelPhone:      "Phone number",
	LabelSSN:        "Social Security Number",
	LabelCreditCard: "Credit card number",
	LabelIPAddress:  "IP address",
	LabelDOB:        "Date of birth",
	LabelPerson:     "Person name",
	LabelAddress:    "Physical address",
}

// StatisticalRedactor is the model-backed redaction engine. Detection
// comes from a token-classification scanner; tokenization, restoration
// and session lifecycle are shared with the pattern engine through the
// same TokenVault. Any scanner failure falls back to pattern detection
// so redaction never silently degrades to a no-op.
type StatisticalRedactor struct {
	scanner  recognizer.Scanner
	fallback *Redactor
	logger   *logger.Logger
}

// NewStatisticalRedactor creates a model-backed engine that shares its
// vault with the given pattern fallback.
func NewStatisticalRedactor(scanner recognizer.Scanner, fallback *Redactor, log *logger.Logger) *StatisticalRedactor {
	return &StatisticalRedactor{
		scanner:  scanner,
		fallback: fallback,
		logger:   log,
	}
}

var _ Engine = (*StatisticalRedactor)(nil)

// Redact implements Engine. Known-value hits keep priority 0 over model
// entities so configured names are always caught, even when the model
// misses them.
func (s *StatisticalRedactor) Redact(ctx context.Context, text, sessionID string) (string, *Metadata, error) {
	if text == "" {
		return text, &Metadata{Method: methodStatistical, Redactions: make(map[string]Redaction)}, nil
	}
	if s.scanner == nil || !s.scanner.Ready() {
		return s.redactFallback(ctx, text, sessionID, nil)
	}

	entities, err := s.scanner.Scan(ctx, text)
	if err != nil {
		return s.redactFallback(ctx, text, sessionID, err)
	}

	meta := &Metadata{Method: methodStatistical, Redactions: make(map[string]Redaction)}
	spans := s.fallback.knownValueSpans(text)
	maxScore := 0.0
	for i, e := range entities {
		if insideToken(text, e.Start, e.End) {
			continue
		}
		desc, ok := entityDescriptions[e.Label]
		if !ok {
			continue
		}
		if e.Score > maxScore {
			maxScore = e.Score
		}
		spans = append(spans, span{
			start:       e.Start,
			end:         e.End,
			priority:    i + 1,
			label:       e.Label,
			value:       text[e.Start:e.End],
			description: desc,
		})
	}
	kept := resolveOverlaps(spans)

	redacted, err := applySpans(ctx, s.fallback.vault, sessionID, text, kept, meta)
	if err != nil {
		return "", nil, err
	}
	meta.Scan = &ScanSummary{
		Valid:           true,
		RiskScore:       float32(maxScore),
		OriginalLength:  len(text),
		RedactedLength:  len(redacted),
		RedactionsCount: len(kept),
	}

	if s.logger != nil {
		s.logger.Debug("PII redacted",
			zap.String("session_id", sessionID),
			zap.String("method", methodStatistical),
			zap.Int("entities", len(entities)),
			zap.Int("spans", len(kept)),
		)
	}
	return redacted, meta, nil
}

func (s *StatisticalRedactor) redactFallback(ctx context.Context, text, sessionID string, cause error) (string, *Metadata, error) {
	if s.logger != nil {
		s.logger.Warn("model scan unavailable, using pattern detection",
			zap.String("session_id", sessionID),
			zap.Error(cause),
		)
	}
	return s.fallback.Redact(ctx, text, sessionID)
}

// Restore implements Engine.
func (s *StatisticalRedactor) Restore(ctx context.Context, text, sessionID string) (string, error) {
	return s.fallback.Restore(ctx, text, sessionID)
}

// Stats implements Engine.
func (s *StatisticalRedactor) Stats(ctx context.Context, sessionID string) (Stats, error) {
	return s.fallback.Stats(ctx, sessionID)
}

// ExportMap implements Engine.
func (s *StatisticalRedactor) ExportMap(ctx context.Context, sessionID string) (ExportRecord, error) {
	return s.fallback.ExportMap(ctx, sessionID)
}

// ClearSession implements Engine.
func (s *StatisticalRedactor) ClearSession(ctx context.Context, sessionID string) error {
	return s.fallback.ClearSession(ctx, sessionID)
}

// Close releases the scanner's native resources, if any.
func (s *StatisticalRedactor) Close() error {
	if s.scanner == nil {
		return nil
	}
	return s.scanner.Close()
}
