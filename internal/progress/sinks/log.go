package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/progress"
)

// LogSink writes progress events as structured logs. Per-file events log at
// Debug, lifecycle and detection events at Info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("scan_id", evt.ScanID),
			zap.String("stage", string(evt.Stage)),
			zap.String("path", evt.Path),
		}
		switch evt.Stage {
		case progress.StageFileDone:
			s.logger.Debug("file examined", append(fields, zap.Int64("bytes", evt.Bytes))...)
		case progress.StageDetection:
			s.logger.Info("candidate found", append(fields,
				zap.String("wallet_type", string(evt.WalletType)),
				zap.String("method", string(evt.Method)),
				zap.Float64("confidence", evt.Confidence),
			)...)
		case progress.StageScanError:
			s.logger.Error("scan failed", append(fields,
				zap.String("status", string(evt.Status)),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)...)
		default:
			s.logger.Info("scan progress", append(fields,
				zap.String("status", string(evt.Status)),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
