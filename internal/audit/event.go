package audit

import (
	"encoding/json"
	"time"
)

// EventType classifies a security event.
type EventType string

const (
	EventLoginAttempt  EventType = "login-attempt"
	EventTransaction   EventType = "transaction"
	EventDataAccess    EventType = "data-access"
	EventConfigChange  EventType = "configuration-change"
	EventSecurityAlert EventType = "security-alert"
)

// Severity grades a security event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is the audit record submitted to the collector. The collector
// assigns ID and server-side timestamp; the gateway fills everything else at
// dispatch time and never retains the event after submission.
type SecurityEvent struct {
	ID          string                 `json:"id,omitempty"`
	Type        EventType              `json:"type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	UserID      string                 `json:"userId,omitempty"`
	IPAddress   string                 `json:"ipAddress"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   string                 `json:"timestamp"`
}

// StoredEvent is the persisted form backing the security console. Metadata is
// kept as serialized JSON so the schema stays driver-neutral.
type StoredEvent struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Type        string    `json:"type" gorm:"size:32;index"`
	Severity    string    `json:"severity" gorm:"size:16;index"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id" gorm:"size:64;index"`
	IPAddress   string    `json:"ip_address" gorm:"size:64"`
	Metadata    string    `json:"metadata"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (StoredEvent) TableName() string { return "security_events" }

// ToStored converts a wire event into its persisted form.
func (e *SecurityEvent) ToStored() (*StoredEvent, error) {
	var meta []byte
	if e.Metadata != nil {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, err
		}
		meta = raw
	}
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	return &StoredEvent{
		ID:          e.ID,
		Type:        string(e.Type),
		Severity:    string(e.Severity),
		Description: e.Description,
		UserID:      e.UserID,
		IPAddress:   e.IPAddress,
		Metadata:    string(meta),
		Timestamp:   ts,
	}, nil
}
