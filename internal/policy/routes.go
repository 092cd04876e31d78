package policy

import (
	"net/http"
	"strings"
)

// RoutePolicy declares how requests touching a URL fragment are treated by
// the interceptor pipeline. Keeping the mapping in one table makes the
// security posture reviewable as data instead of string literals scattered
// across stages.
type RoutePolicy struct {
	Fragment     string `json:"fragment" mapstructure:"fragment"`
	Auditable    bool   `json:"auditable" mapstructure:"auditable"`
	FraudChecked bool   `json:"fraud_checked" mapstructure:"fraud_checked"`
	Encrypted    bool   `json:"encrypted" mapstructure:"encrypted"`
}

// Classification is the resolved posture for one outbound request.
type Classification struct {
	Auditable    bool
	FraudChecked bool
	Encrypted    bool
}

// Table resolves URLs against an ordered set of route policies.
type Table struct {
	policies []RoutePolicy
}

// Default returns the platform's standard route table. Fraud checks only
// apply to money movement, which the pipeline further restricts to POST.
func Default() *Table {
	return NewTable([]RoutePolicy{
		{Fragment: "/auth", Auditable: true, Encrypted: true},
		{Fragment: "/login", Auditable: true, Encrypted: true},
		{Fragment: "/wallet", Auditable: true, FraudChecked: true, Encrypted: true},
		{Fragment: "/trade", Auditable: true, FraudChecked: true, Encrypted: true},
		{Fragment: "/invest", Auditable: true, FraudChecked: true, Encrypted: true},
		{Fragment: "/transfer", Auditable: true, FraudChecked: true, Encrypted: true},
		{Fragment: "/kyc", Auditable: true, Encrypted: true},
		{Fragment: "/security", Auditable: true},
		{Fragment: "/fraud", Auditable: true},
		{Fragment: "/audit", Auditable: true},
	})
}

// NewTable builds a table from explicit policies, e.g. loaded from config.
func NewTable(policies []RoutePolicy) *Table {
	return &Table{policies: policies}
}

// Classify merges every policy whose fragment appears in url. Fraud checks
// are limited to POST requests; mutating verbs stay auditable through the
// audit classifier regardless of the table.
func (t *Table) Classify(url, method string) Classification {
	var c Classification
	lower := strings.ToLower(url)
	for _, p := range t.policies {
		if !strings.Contains(lower, p.Fragment) {
			continue
		}
		c.Auditable = c.Auditable || p.Auditable
		c.Encrypted = c.Encrypted || p.Encrypted
		if p.FraudChecked && strings.EqualFold(method, http.MethodPost) {
			c.FraudChecked = true
		}
	}
	return c
}

// Policies returns a copy of the table contents.
func (t *Table) Policies() []RoutePolicy {
	out := make([]RoutePolicy, len(t.policies))
	copy(out, t.policies)
	return out
}
