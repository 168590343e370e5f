package logging

import (
	"context"
	"log/slog"

	"pipewright/internal/runctx"
)

const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldRunID is the pipeline run identifier.
	FieldRunID = "run_id"
	// FieldPipeline is the pipeline definition name.
	FieldPipeline = "pipeline"
	// FieldWorker is the worker name a process hosts.
	FieldWorker = "worker"
	// FieldPID is an OS process id.
	FieldPID = "pid"
	// FieldPipe is a named pipe.
	FieldPipe = "pipe"
	// FieldError carries an error value.
	FieldError = "error"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := runctx.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if name, ok := runctx.PipelineFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPipeline, name))
	}
	if worker, ok := runctx.WorkerFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorker, worker))
	}
	if pid, ok := runctx.PIDFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldPID, pid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
