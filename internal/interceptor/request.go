package interceptor

import (
	"net/http"
)

// OutboundRequest is the value object flowing through the pipeline. Stages
// never mutate a request in place; they derive a new one through the With*
// helpers so every stage observes a consistent snapshot and a failure can be
// attributed to the stage that produced it.
type OutboundRequest struct {
	URL     string
	Method  string
	Headers http.Header
	Body    interface{}

	// Identity context resolved at the edge, read-only for stages.
	SessionID string
	UserID    string
	ClientIP  string
}

// NewOutboundRequest creates a request with initialized headers.
func NewOutboundRequest(method, url string, body interface{}) *OutboundRequest {
	return &OutboundRequest{
		URL:     url,
		Method:  method,
		Headers: make(http.Header),
		Body:    body,
	}
}

// Clone returns a deep-enough copy: headers are copied, the body is shared.
// Stages replace the body wholesale via WithBody rather than editing it.
func (r *OutboundRequest) Clone() *OutboundRequest {
	clone := *r
	clone.Headers = make(http.Header, len(r.Headers))
	for k, values := range r.Headers {
		copied := make([]string, len(values))
		copy(copied, values)
		clone.Headers[k] = copied
	}
	return &clone
}

// WithHeader returns a copy of the request with the header set.
func (r *OutboundRequest) WithHeader(key, value string) *OutboundRequest {
	clone := r.Clone()
	clone.Headers.Set(key, value)
	return clone
}

// WithBody returns a copy of the request with the body replaced.
func (r *OutboundRequest) WithBody(body interface{}) *OutboundRequest {
	clone := r.Clone()
	clone.Body = body
	return clone
}

// BodyObject returns the body as a JSON object when it is one.
func (r *OutboundRequest) BodyObject() (map[string]interface{}, bool) {
	obj, ok := r.Body.(map[string]interface{})
	return obj, ok
}

// HasStructuredBody reports whether the body is a JSON object or array, the
// only shapes the encrypt stage will rewrite.
func (r *OutboundRequest) HasStructuredBody() bool {
	switch r.Body.(type) {
	case map[string]interface{}, []interface{}:
		return true
	default:
		return false
	}
}
