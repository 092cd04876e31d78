package interceptor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/fraud"
	"github.com/nimbafinance/edge-gateway/internal/metrics"
	"github.com/nimbafinance/edge-gateway/internal/policy"
)

// ErrTransactionBlocked is returned in blocking mode when the scorer's
// verdict is "block".
var ErrTransactionBlocked = errors.New("interceptor: transaction blocked by fraud analysis")

// FraudInterceptor submits money-movement requests for fraud scoring. In
// advisory mode (the default) the analysis runs in the background and the
// request is forwarded regardless of the verdict, which means a "block" can
// arrive after dispatch. Blocking mode awaits the verdict and fails the
// request on "block", at the cost of scorer latency on every matching call.
type FraudInterceptor struct {
	table     *policy.Table
	analyzer  *fraud.Analyzer
	collector *metrics.Collector
	logger    *zap.Logger
	blocking  bool
	timeout   time.Duration
}

// NewFraudInterceptor creates the fraud stage.
func NewFraudInterceptor(table *policy.Table, analyzer *fraud.Analyzer, collector *metrics.Collector, logger *zap.Logger, blocking bool, timeout time.Duration) *FraudInterceptor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &FraudInterceptor{
		table:     table,
		analyzer:  analyzer,
		collector: collector,
		logger:    logger,
		blocking:  blocking,
		timeout:   timeout,
	}
}

// Name implements Interceptor.
func (i *FraudInterceptor) Name() string { return StageFraud }

// Process implements Interceptor.
func (i *FraudInterceptor) Process(ctx context.Context, req *OutboundRequest) (*OutboundRequest, error) {
	if !i.table.Classify(req.URL, req.Method).FraudChecked {
		return req, nil
	}
	body, ok := req.BodyObject()
	if !ok {
		return req, nil
	}

	descriptor := fraud.BuildDescriptor(req.URL, req.UserID, body)

	if !i.blocking {
		// Advisory mode: the verdict is detached from the request flow, so
		// it cannot block a request that has already been dispatched.
		go i.analyze(descriptor)
		return req, nil
	}

	analysisCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	risk, err := i.analyzer.Analyze(analysisCtx, descriptor)
	if err != nil {
		// Scorer unavailability fails open: money movement is not held
		// hostage to the fraud service being up.
		i.logger.Error("fraud analysis unavailable, forwarding request",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return req, nil
	}
	i.record(risk)

	if risk.Recommendation == fraud.RecommendBlock {
		return nil, ErrTransactionBlocked
	}
	return req, nil
}

func (i *FraudInterceptor) analyze(descriptor *fraud.TransactionDescriptor) {
	// Detached from the request context on purpose: the submission must
	// survive the originating request completing first.
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	risk, err := i.analyzer.Analyze(ctx, descriptor)
	if err != nil {
		i.logger.Error("fraud analysis failed", zap.Error(err))
		return
	}
	i.record(risk)
	if risk.Recommendation == fraud.RecommendBlock {
		i.logger.Warn("fraud verdict arrived after dispatch",
			zap.String("recommendation", string(risk.Recommendation)),
			zap.Int("risk_score", risk.RiskScore),
		)
	}
}

func (i *FraudInterceptor) record(risk *fraud.TransactionRisk) {
	if i.collector != nil {
		i.collector.FraudVerdict(string(risk.Recommendation))
	}
}
