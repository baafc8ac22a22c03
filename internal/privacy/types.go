package privacy

import "regexp"

// Category defines a single class of PII with its detection rule.
type Category struct {
	Key         string
	Label       string
	Pattern     *regexp.Regexp
	Description string
}

// Redaction describes one token introduced or reused by a Redact call.
type Redaction struct {
	Type        string `json:"type"`
	Original    string `json:"-"` // Never serialize raw PII
	Description string `json:"description"`
}

// Metadata is the per-call redaction record. The pattern engine fills
// Redactions with every token touched by the call; the statistical
// engine fills Scan with the recognizer summary instead.
type Metadata struct {
	Method     string               `json:"method"`
	Redactions map[string]Redaction `json:"redactions,omitempty"`
	Scan       *ScanSummary         `json:"scan,omitempty"`
}

// ScanSummary is the metadata shape produced by the statistical engine.
type ScanSummary struct {
	Valid           bool    `json:"is_valid"`
	RiskScore       float32 `json:"risk_score"`
	OriginalLength  int     `json:"original_length"`
	RedactedLength  int     `json:"redacted_length"`
	RedactionsCount int     `json:"redactions_count"`
}

// Stats summarizes a session's accumulated redactions.
type Stats struct {
	TotalRedactions int            `json:"total_redactions"`
	ByType          map[string]int `json:"by_type"`
}

// ExportRecord is the audit export for a session: the full token
// mapping plus the derived stats.
type ExportRecord struct {
	SessionID    string            `json:"session_id"`
	RedactionMap map[string]string `json:"redaction_map"`
	Stats        Stats             `json:"stats"`
}
