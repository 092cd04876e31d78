package interceptor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/audit"
	"github.com/nimbafinance/edge-gateway/internal/metrics"
	"github.com/nimbafinance/edge-gateway/internal/policy"
)

// AuditInterceptor classifies requests against the route table and hands a
// SecurityEvent to the audit dispatcher for every match. It never rewrites
// the request and delivery failures never reach the caller: the dispatcher
// owns the fire-and-forget semantics.
type AuditInterceptor struct {
	table      *policy.Table
	dispatcher *audit.Dispatcher
	collector  *metrics.Collector
	logger     *zap.Logger
}

// NewAuditInterceptor creates the audit stage.
func NewAuditInterceptor(table *policy.Table, dispatcher *audit.Dispatcher, collector *metrics.Collector, logger *zap.Logger) *AuditInterceptor {
	return &AuditInterceptor{
		table:      table,
		dispatcher: dispatcher,
		collector:  collector,
		logger:     logger,
	}
}

// Name implements Interceptor.
func (i *AuditInterceptor) Name() string { return StageAudit }

// Process implements Interceptor.
func (i *AuditInterceptor) Process(ctx context.Context, req *OutboundRequest) (*OutboundRequest, error) {
	if !i.table.Classify(req.URL, req.Method).Auditable {
		return req, nil
	}

	metadata := map[string]interface{}{
		"url":    req.URL,
		"method": req.Method,
	}
	// The audit stage runs before encryption, so this is the plaintext body.
	if body, ok := req.BodyObject(); ok {
		metadata["body"] = body
	}

	event := &audit.SecurityEvent{
		Type:        audit.DeriveEventType(req.URL, req.Method),
		Severity:    audit.DeriveSeverity(req.URL, req.Method),
		Description: fmt.Sprintf("%s %s", req.Method, req.URL),
		UserID:      req.UserID,
		IPAddress:   req.ClientIP,
		Metadata:    metadata,
	}

	i.dispatcher.Submit(event)
	if i.collector != nil {
		i.collector.AuditSubmitted()
	}
	i.logger.Debug("security event submitted",
		zap.String("type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("url", req.URL),
	)

	return req, nil
}
