package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/callbridge/internal/queue"
	"github.com/acme/callbridge/internal/repository"
	"github.com/acme/callbridge/pkg/logger"
)

// Reader is the subset of *kafka.Reader the worker consumes through.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Worker consumes call status events and projects them into the registry and
// the snapshot history.
type Worker struct {
	reader    Reader
	registry  repository.CallRegistry
	snapshots repository.SnapshotStore
	logger    *logger.Logger
	tracer    trace.Tracer

	retryBase time.Duration
	retryMax  time.Duration
}

// New creates a new status worker.
func New(reader Reader, registry repository.CallRegistry, snapshots repository.SnapshotStore, lg *logger.Logger) *Worker {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Worker{
		reader:    reader,
		registry:  registry,
		snapshots: snapshots,
		logger:    lg,
		tracer:    otel.Tracer("callbridge.statusworker"),
		retryBase: 500 * time.Millisecond,
		retryMax:  30 * time.Second,
	}
}

// Run processes status events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("status worker: fetch", zap.Error(err))
			continue
		}

		// Committing a later offset would skip this one, so the message is
		// retried until it projects or the worker stops.
		if err := w.project(ctx, msg); err != nil {
			return err
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			w.logger.Error("status worker: commit", zap.Error(err))
		}
	}
}

func (w *Worker) project(ctx context.Context, msg kafka.Message) error {
	delay := w.retryBase
	for attempt := 1; ; attempt++ {
		err := w.handle(ctx, msg)
		if err == nil {
			return nil
		}
		w.logger.Error("status worker: project",
			zap.String("key", string(msg.Key)),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > w.retryMax {
			delay = w.retryMax
		}
	}
}

// handle projects one event. Malformed events return nil so they are committed
// and skipped.
func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	var status queue.StatusMessage
	if err := json.Unmarshal(msg.Value, &status); err != nil {
		w.logger.Error("status worker: unmarshal", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	if status.SID == "" {
		w.logger.Error("status worker: message without call sid", zap.Int64("offset", msg.Offset))
		return nil
	}

	sctx, span := w.tracer.Start(ctx, "call.status", trace.WithAttributes(
		attribute.String("call.sid", status.SID),
		attribute.String("call.status", status.Status.String()),
		attribute.String("observation.kind", string(status.Kind)),
	))
	defer span.End()

	snapshot := status.Snapshot()
	if err := w.snapshots.Append(sctx, snapshot); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("append snapshot: %w", err)
	}
	if err := w.registry.Record(sctx, snapshot); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}
