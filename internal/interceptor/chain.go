package interceptor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/metrics"
)

// Stage names, also used as metric labels.
const (
	StageAuth    = "auth"
	StageAudit   = "audit"
	StageFraud   = "fraud"
	StageEncrypt = "encrypt"
)

// Interceptor is one pipeline stage. Process must either forward a request
// (the input or a derived copy) or fail it; returning (nil, nil) is invalid.
// Stages whose side effects must not affect the request swallow their own
// errors and forward the input unchanged.
type Interceptor interface {
	Name() string
	Process(ctx context.Context, req *OutboundRequest) (*OutboundRequest, error)
}

// Chain applies its stages to every outbound request in declaration order.
// The platform order is fixed: auth decorates first so later stages can
// attribute events to an identity, audit and fraud observe the plaintext
// body, and encrypt runs last so the wire payload is the protected one.
type Chain struct {
	stages    []Interceptor
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewChain builds a pipeline over the given stages.
func NewChain(logger *zap.Logger, collector *metrics.Collector, stages ...Interceptor) *Chain {
	return &Chain{
		stages:    stages,
		collector: collector,
		logger:    logger,
	}
}

// Process runs req through every stage and returns the final request bound
// for the transport, or the first stage error.
func (c *Chain) Process(ctx context.Context, req *OutboundRequest) (*OutboundRequest, error) {
	current := req
	for _, stage := range c.stages {
		start := time.Now()
		next, err := stage.Process(ctx, current)
		if c.collector != nil {
			c.collector.ObserveStage(stage.Name(), time.Since(start), err)
		}
		if err != nil {
			c.logger.Warn("pipeline stage failed request",
				zap.String("stage", stage.Name()),
				zap.String("method", current.Method),
				zap.String("url", current.URL),
				zap.Error(err),
			)
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		if next == nil {
			return nil, fmt.Errorf("stage %s: forwarded nil request", stage.Name())
		}
		current = next
	}
	return current, nil
}

// Stages returns the stage names in execution order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, stage := range c.stages {
		names[i] = stage.Name()
	}
	return names
}
