package privacy

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/logger"
)

const methodPattern = "pattern"

// Redactor is the deterministic, pattern-based redaction engine. It
// detects PII spans with the category registry and the known-value
// list, substitutes stable per-session tokens, and supports full
// restoration from the injected TokenVault.
type Redactor struct {
	categories  []Category
	knownValues []string
	vault       TokenVault
	logger      *logger.Logger
}

// NewRedactor creates a pattern-based redaction engine. A nil vault
// falls back to an in-memory vault; nil categories fall back to the
// default registry.
func NewRedactor(categories []Category, knownValues []string, vault TokenVault, log *logger.Logger) *Redactor {
	if categories == nil {
		categories = DefaultCategories()
	}
	if vault == nil {
		vault = NewMemoryVault()
	}
	return &Redactor{
		categories:  categories,
		knownValues: knownValues,
		vault:       vault,
		logger:      log,
	}
}

var _ Engine = (*Redactor)(nil)

// span is a candidate PII occurrence in the original text. Priority 0
// is the known-value list; pattern categories follow in registry order.
type span struct {
	start, end  int
	priority    int
	label       string
	value       string
	description string
}

// Redact implements Engine. Detection runs in two passes over the
// original text: collect candidate spans from the known-value list and
// every category, then resolve overlaps by priority (known values
// first, then registry order, earliest start wins) and substitute the
// surviving spans in a single pass.
func (r *Redactor) Redact(ctx context.Context, text, sessionID string) (string, *Metadata, error) {
	meta := &Metadata{Method: methodPattern, Redactions: make(map[string]Redaction)}
	if text == "" {
		return text, meta, nil
	}

	spans := r.collectSpans(text)
	if len(spans) == 0 {
		return text, meta, nil
	}
	kept := resolveOverlaps(spans)

	redacted, err := applySpans(ctx, r.vault, sessionID, text, kept, meta)
	if err != nil {
		return "", nil, err
	}

	if r.logger != nil {
		r.logger.Debug("PII redacted",
			zap.String("session_id", sessionID),
			zap.Int("spans", len(kept)),
			zap.Int("tokens", len(meta.Redactions)),
		)
	}
	return redacted, meta, nil
}

// applySpans substitutes the resolved spans in a single left-to-right
// pass, minting or reusing a vault token for each. Spans must be
// non-overlapping and sorted by start offset.
func applySpans(ctx context.Context, vault TokenVault, sessionID, text string, kept []span, meta *Metadata) (string, error) {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range kept {
		token, err := vault.GetOrCreateToken(ctx, sessionID, s.label, s.value)
		if err != nil {
			return "", err
		}
		b.WriteString(text[last:s.start])
		b.WriteByte('[')
		b.WriteString(token)
		b.WriteByte(']')
		last = s.end
		meta.Redactions[token] = Redaction{
			Type:        s.label,
			Original:    s.value,
			Description: s.description,
		}
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// collectSpans gathers every candidate occurrence: all verbatim
// known-value hits, then all pattern matches per category. Matches that
// already look like an emitted token are skipped so re-redacting stored
// text never tokenizes a token.
func (r *Redactor) collectSpans(text string) []span {
	spans := r.knownValueSpans(text)

	for ci, cat := range r.categories {
		for _, m := range cat.Pattern.FindAllStringIndex(text, -1) {
			if insideToken(text, m[0], m[1]) {
				continue
			}
			value := text[m[0]:m[1]]
			spans = append(spans, span{
				start:       m[0],
				end:         m[1],
				priority:    ci + 1,
				label:       cat.Label,
				value:       value,
				description: cat.Description,
			})
		}
	}
	return spans
}

// knownValueSpans collects every verbatim hit of the configured
// known-value list at priority 0, so a known name always beats a
// pattern match on the same bytes.
func (r *Redactor) knownValueSpans(text string) []span {
	var spans []span
	for _, kv := range r.knownValues {
		if kv == "" {
			continue
		}
		for i := 0; ; {
			j := strings.Index(text[i:], kv)
			if j < 0 {
				break
			}
			start := i + j
			spans = append(spans, span{
				start:       start,
				end:         start + len(kv),
				priority:    0,
				label:       LabelPerson,
				value:       kv,
				description: knownValueDescription,
			})
			i = start + len(kv)
		}
	}
	return spans
}

// insideToken reports whether text[start:end] sits inside an emitted
// token such as [EMAIL_3], so re-redacting already-redacted text never
// tokenizes a token.
func insideToken(text string, start, end int) bool {
	i := strings.LastIndexByte(text[:start], '[')
	if i < 0 {
		return false
	}
	j := strings.IndexByte(text[end:], ']')
	if j < 0 {
		return false
	}
	return tokenForm.MatchString(text[i : end+j+1])
}

// resolveOverlaps keeps the highest-priority, earliest-starting span of
// every overlapping group and returns the survivors in text order.
func resolveOverlaps(spans []span) []span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].priority != spans[j].priority {
			return spans[i].priority < spans[j].priority
		}
		return spans[i].start < spans[j].start
	})

	var kept []span
	for _, s := range spans {
		overlaps := false
		for _, k := range kept {
			if s.start < k.end && k.start < s.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, s)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

// Restore implements Engine. Token replacement order is sorted for
// determinism; bracketed tokens are disjoint by construction, so order
// cannot change the result.
func (r *Redactor) Restore(ctx context.Context, text, sessionID string) (string, error) {
	if text == "" {
		return text, nil
	}
	mapping, err := r.vault.Mapping(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(mapping) == 0 {
		return text, nil
	}

	tokens := make([]string, 0, len(mapping))
	for token := range mapping {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	restored := text
	for _, token := range tokens {
		restored = strings.ReplaceAll(restored, "["+token+"]", mapping[token])
	}
	return restored, nil
}

// Stats implements Engine. The category label is derived by stripping
// the trailing _N suffix from each stored token.
func (r *Redactor) Stats(ctx context.Context, sessionID string) (Stats, error) {
	mapping, err := r.vault.Mapping(ctx, sessionID)
	if err != nil {
		return Stats{}, err
	}
	return statsFromMapping(mapping), nil
}

// ExportMap implements Engine.
func (r *Redactor) ExportMap(ctx context.Context, sessionID string) (ExportRecord, error) {
	mapping, err := r.vault.Mapping(ctx, sessionID)
	if err != nil {
		return ExportRecord{}, err
	}
	return ExportRecord{
		SessionID:    sessionID,
		RedactionMap: mapping,
		Stats:        statsFromMapping(mapping),
	}, nil
}

// ClearSession implements Engine.
func (r *Redactor) ClearSession(ctx context.Context, sessionID string) error {
	return r.vault.Clear(ctx, sessionID)
}

func statsFromMapping(mapping map[string]string) Stats {
	stats := Stats{ByType: make(map[string]int)}
	for token := range mapping {
		label := token
		if i := strings.LastIndex(token, "_"); i > 0 {
			label = token[:i]
		}
		stats.ByType[label]++
		stats.TotalRedactions++
	}
	return stats
}
