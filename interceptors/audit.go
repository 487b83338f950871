package interceptors

import (
	"context"
	"log/slog"
	"time"
)

// AuditRecord describes one completed intercepted call
type AuditRecord struct {
	InvocationID string        `json:"invocationId"`
	Target       string        `json:"target"`
	Method       string        `json:"method"`
	ArgCount     int           `json:"argCount"`
	Depth        int           `json:"depth"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}

// AuditPublisher sends audit records somewhere durable
type AuditPublisher interface {
	PublishAudit(ctx context.Context, record AuditRecord) error
}

// AuditHandler publishes an AuditRecord for every call it sees.
// A failed publish is logged and never changes the call result.
type AuditHandler struct {
	publisher AuditPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(publisher AuditPublisher, logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuditHandler{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle implements Handler
func (h *AuditHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	start := h.now()
	result, err := proceed(ctx)

	record := AuditRecord{
		InvocationID: inv.ID,
		Target:       inv.Target,
		Method:       inv.Method,
		ArgCount:     len(inv.Args),
		Depth:        inv.Depth,
		StartedAt:    start,
		Duration:     h.now().Sub(start),
		Success:      err == nil,
	}
	if err != nil {
		record.Error = err.Error()
	}

	if pubErr := h.publisher.PublishAudit(ctx, record); pubErr != nil {
		h.logger.Warn("failed to publish audit record",
			"invocationId", inv.ID,
			"method", inv.Method,
			"error", pubErr,
		)
	}

	return result, err
}

// Name implements Handler
func (h *AuditHandler) Name() string {
	return "AuditHandler"
}
