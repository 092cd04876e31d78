package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Recommendation is the scorer's verdict for a transaction.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReview  Recommendation = "review"
	RecommendBlock   Recommendation = "block"
)

// TransactionDescriptor is the normalized transaction summary submitted for
// scoring. Metadata carries the original request body so the scorer sees the
// unencrypted content.
type TransactionDescriptor struct {
	Amount    float64                `json:"amount"`
	Currency  string                 `json:"currency"`
	Type      string                 `json:"type"`
	UserID    string                 `json:"userId"`
	Timestamp string                 `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// TransactionRisk is the scorer's response.
type TransactionRisk struct {
	RiskScore        int            `json:"riskScore"`
	RiskFactors      []string       `json:"riskFactors"`
	Recommendation   Recommendation `json:"recommendation"`
	FraudProbability float64        `json:"fraudProbability"`
}

// Analyzer is the client half of fraud scoring. It does not compute risk
// itself; it ships descriptors to the scoring endpoint and interprets the
// verdict.
type Analyzer struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewAnalyzer creates an analyzer posting to endpoint.
func NewAnalyzer(endpoint string, timeout time.Duration, logger *zap.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Analyzer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Analyze submits descriptor and returns the scorer's verdict.
func (a *Analyzer) Analyze(ctx context.Context, descriptor *TransactionDescriptor) (*TransactionRisk, error) {
	body, err := json.Marshal(descriptor)
	if err != nil {
		return nil, fmt.Errorf("fraud: failed to encode descriptor: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fraud: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fraud: scorer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fraud: scorer returned status %d", resp.StatusCode)
	}

	var risk TransactionRisk
	if err := json.NewDecoder(resp.Body).Decode(&risk); err != nil {
		return nil, fmt.Errorf("fraud: failed to decode verdict: %w", err)
	}

	if risk.Recommendation != RecommendApprove {
		a.logger.Warn("fraud scorer flagged transaction",
			zap.String("recommendation", string(risk.Recommendation)),
			zap.Int("risk_score", risk.RiskScore),
			zap.Strings("risk_factors", risk.RiskFactors),
		)
	}
	return &risk, nil
}

// BuildDescriptor derives a descriptor from an outbound request. The
// transaction type is the last path segment of the URL; amount and currency
// come from the body when present.
func BuildDescriptor(rawURL, userID string, body map[string]interface{}) *TransactionDescriptor {
	descriptor := &TransactionDescriptor{
		Type:      lastPathSegment(rawURL),
		UserID:    userID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Metadata:  body,
	}
	if body != nil {
		if amount, ok := body["amount"].(float64); ok {
			descriptor.Amount = amount
		}
		if currency, ok := body["currency"].(string); ok {
			descriptor.Currency = currency
		}
	}
	return descriptor
}

func lastPathSegment(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	path := rawURL
	if err == nil {
		path = parsed.Path
	}
	path = strings.TrimRight(path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
