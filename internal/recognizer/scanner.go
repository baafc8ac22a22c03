package recognizer

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/logger"
)

// ErrUnavailable is returned when no inference backend is compiled in
// or the model failed to load. Callers are expected to fall back to
// pattern-based detection.
var ErrUnavailable = errors.New("recognizer: model backend unavailable")

// Entity is a detected PII occurrence with byte offsets into the
// scanned text. Label values match the category labels used for token
// prefixes (PERSON, EMAIL, ...).
type Entity struct {
	Label string
	Start int
	End   int
	Score float64
}

// Scanner detects PII entities in free text.
type Scanner interface {
	Scan(ctx context.Context, text string) ([]Entity, error)
	Ready() bool
	Close() error
}

// Config contains model scanner configuration.
type Config struct {
	ModelPath string
	MaxLength int
	Threshold float64
	Labels    []string
}

// DefaultLabels is the label set of the bundled token-classification
// model. Index 0 is the outside class and is never emitted.
func DefaultLabels() []string {
	return []string{"O", "PERSON", "EMAIL", "PHONE", "SSN", "CREDIT_CARD", "IP_ADDRESS", "DOB", "ADDRESS"}
}

// ModelScanner runs a token-classification model over the input and
// merges adjacent same-label predictions into entities.
type ModelScanner struct {
	backend   InferenceBackend
	labels    []string
	threshold float64
	logger    *logger.Logger
}

// NewScanner creates a model-backed scanner. Returns ErrUnavailable
// when the current build has no inference backend or the model could
// not be loaded.
func NewScanner(cfg Config, log *logger.Logger) (*ModelScanner, error) {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = DefaultLabels()
	}

	var zl *zap.Logger
	if log != nil {
		zl = log.Logger
	} else {
		zl = zap.NewNop()
	}
	backend := newInferenceBackend(zl, cfg.ModelPath, cfg.MaxLength)
	if backend == nil || !backend.IsReady() {
		return nil, ErrUnavailable
	}
	return &ModelScanner{
		backend:   backend,
		labels:    cfg.Labels,
		threshold: cfg.Threshold,
		logger:    log,
	}, nil
}

var _ Scanner = (*ModelScanner)(nil)

// Ready implements Scanner.
func (s *ModelScanner) Ready() bool {
	return s.backend != nil && s.backend.IsReady()
}

// Close implements Scanner.
func (s *ModelScanner) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Scan implements Scanner. Tokens are classified individually; runs of
// adjacent tokens with the same label merge into one entity whose score
// is the minimum over the run.
func (s *ModelScanner) Scan(ctx context.Context, text string) ([]Entity, error) {
	if !s.Ready() {
		return nil, ErrUnavailable
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	scores, err := s.backend.Classify(ctx, tokens)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(tokens) {
		return nil, errors.New("recognizer: score count does not match token count")
	}

	var entities []Entity
	var current *Entity
	for i, tok := range tokens {
		labelIdx, score := argmax(scores[i])
		label := ""
		if labelIdx < len(s.labels) {
			label = s.labels[labelIdx]
		}
		if labelIdx == 0 || label == "" || score < s.threshold {
			current = nil
			continue
		}
		if current != nil && current.Label == label {
			current.End = tok.End
			if score < current.Score {
				current.Score = score
			}
			continue
		}
		entities = append(entities, Entity{Label: label, Start: tok.Start, End: tok.End, Score: score})
		current = &entities[len(entities)-1]
	}

	sort.Slice(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	if s.logger != nil {
		s.logger.Debug("model scan complete",
			zap.Int("tokens", len(tokens)),
			zap.Int("entities", len(entities)),
		)
	}
	return entities, nil
}

func argmax(scores []float32) (int, float64) {
	best, bestScore := 0, float32(0)
	for i, sc := range scores {
		if sc > bestScore {
			best, bestScore = i, sc
		}
	}
	return best, float64(bestScore)
}
