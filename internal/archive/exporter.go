// Package archive exports stored conversations to Parquet for
// analytics and retention tooling. Stored content is redacted before
// it ever reaches the store, so archives are safe to ship downstream.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/session"
)

// Source is the slice of the store the exporter needs.
type Source interface {
	ListSessionIDs(ctx context.Context) ([]string, error)
	LoadMessages(ctx context.Context, sessionID string) ([]session.Message, error)
}

// Row is one archived message in the Parquet output.
type Row struct {
	SessionID   string `parquet:"session_id,dict"`
	Role        string `parquet:"role,dict"`
	Content     string `parquet:"content"`
	TimestampMS int64  `parquet:"timestamp_ms"`
	Turn        int32  `parquet:"turn"`
}

// Result summarizes one export run.
type Result struct {
	Sessions int64
	Messages int64
	Skipped  int64
	Duration time.Duration
}

// Config contains exporter configuration
type Config struct {
	ProgressReport int
}

// Exporter streams conversations from the store into a Parquet writer.
type Exporter struct {
	source Source
	config Config
	logger *logger.Logger
}

// NewExporter creates an exporter over the given store.
func NewExporter(source Source, cfg Config, log *logger.Logger) *Exporter {
	if cfg.ProgressReport <= 0 {
		cfg.ProgressReport = 100
	}
	return &Exporter{source: source, config: cfg, logger: log}
}

// Export writes every stored conversation to w as Parquet rows.
func (e *Exporter) Export(ctx context.Context, w io.Writer) (*Result, error) {
	start := time.Now()
	result := &Result{}

	ids, err := e.source.ListSessionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	e.logger.Info("Starting archive export", zap.Int("sessions", len(ids)))

	writer := parquet.NewWriter(w, parquet.SchemaOf(new(Row)))
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		messages, err := e.source.LoadMessages(ctx, id)
		if errors.Is(err, session.ErrStoreNotFound) {
			// Session metadata without a conversation yet.
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to load messages for %s: %w", id, err)
		}

		for i, msg := range messages {
			row := Row{
				SessionID:   id,
				Role:        msg.Role,
				Content:     msg.Content,
				TimestampMS: msg.Timestamp.UnixMilli(),
				Turn:        int32(i),
			}
			if err := writer.Write(&row); err != nil {
				return result, fmt.Errorf("failed to write row: %w", err)
			}
		}
		result.Sessions++
		result.Messages += int64(len(messages))

		if result.Sessions%int64(e.config.ProgressReport) == 0 {
			e.logger.Info("Export progress",
				zap.Int64("sessions", result.Sessions),
				zap.Int64("messages", result.Messages),
			)
		}
	}

	if err := writer.Close(); err != nil {
		return result, fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	result.Duration = time.Since(start)
	e.logger.Info("Archive export completed",
		zap.Int64("sessions", result.Sessions),
		zap.Int64("messages", result.Messages),
		zap.Int64("skipped", result.Skipped),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
