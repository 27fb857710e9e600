package audit

import "time"

type EventType string

const (
	EventOAuthCompleted        EventType = "oauth_completed"
	EventTokenCreated          EventType = "token_created"
	EventTokenAccessed         EventType = "token_accessed"
	EventTokenRotated          EventType = "token_rotated"
	EventTokenRevoked          EventType = "token_revoked"
	EventTokenValidation       EventType = "token_validation"
	EventHealthCheckPerformed  EventType = "health_check_performed"
	EventEncryptionKeyRotation EventType = "encryption_key_rotation"
	EventAuthFailure           EventType = "auth_failure"
	EventSuspiciousActivity    EventType = "suspicious_activity"
	EventTamperDetected        EventType = "audit_log_tamper_detected"
	EventAuditLogCleanup       EventType = "audit_log_cleanup"
	EventAuditLogFailure       EventType = "audit_log_failure"
	EventRetentionExecuted     EventType = "retention_policy_executed"
	EventLegalHoldAdded        EventType = "legal_hold_added"
	EventLegalHoldRemoved      EventType = "legal_hold_removed"
	EventGDPRDeleteRequested   EventType = "gdpr_delete_requested"
	EventGDPRDeleteCompleted   EventType = "gdpr_delete_completed"
	EventGDPRDeleteFailed      EventType = "gdpr_delete_failed"
	EventConfigChanged         EventType = "config_changed"
)

type ActorType string

const (
	ActorSystem       ActorType = "system"
	ActorAdmin        ActorType = "admin"
	ActorUser         ActorType = "user"
	ActorWebhook      ActorType = "external_webhook"
	ActorScheduledJob ActorType = "scheduled_job"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryDataAccess     Category = "data_access"
	CategoryConfiguration  Category = "configuration"
	CategorySecurity       Category = "security"
	CategoryCompliance     Category = "compliance"
)

// Details is the closed shape an event may attach. Sanitization rules
// for Extra are enforced at write time; the named fields are non-secret
// by construction.
type Details struct {
	Operation   string            `json:"operation,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	RequestedBy string            `json:"requestedBy,omitempty"`
	Count       int               `json:"count,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Event is the descriptor callers hand to the logger. Severity and
// Category may be left empty; they are then derived from Type + Success.
type Event struct {
	Type      EventType
	TeamID    string
	TokenID   string
	ActorType ActorType
	Success   bool
	Severity  Severity
	Category  Category
	Details   *Details
	Error     string
	IPAddress string
	UserAgent string
}

// Entry is one persisted, immutable audit record. The only lifecycle
// transition after insertion is bulk deletion by retention.
type Entry struct {
	ID                string    `json:"id"`
	EventType         EventType `json:"eventType"`
	TeamID            string    `json:"teamId,omitempty"`
	TokenID           string    `json:"tokenId,omitempty"`
	ActorType         ActorType `json:"actorType"`
	Success           bool      `json:"success"`
	Severity          Severity  `json:"severity"`
	Category          Category  `json:"category"`
	DetailsCiphertext string    `json:"-"`
	DetailsAlgorithm  string    `json:"-"`
	DetailsKeyID      string    `json:"-"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	IPAddress         string    `json:"ipAddress,omitempty"`
	UserAgent         string    `json:"userAgent,omitempty"`
	IntegrityHash     string    `json:"integrityHash"`
	CreatedAt         time.Time `json:"createdAt"`
}

type classification struct {
	severity Severity
	category Category
}

var classifications = map[EventType]classification{
	EventOAuthCompleted:        {SeverityMedium, CategoryAuthentication},
	EventTokenCreated:          {SeverityMedium, CategoryAuthentication},
	EventTokenAccessed:         {SeverityLow, CategoryDataAccess},
	EventTokenRotated:          {SeverityMedium, CategorySecurity},
	EventTokenRevoked:          {SeverityHigh, CategorySecurity},
	EventTokenValidation:       {SeverityLow, CategoryAuthorization},
	EventHealthCheckPerformed:  {SeverityLow, CategorySecurity},
	EventEncryptionKeyRotation: {SeverityHigh, CategorySecurity},
	EventAuthFailure:           {SeverityMedium, CategoryAuthentication},
	EventSuspiciousActivity:    {SeverityHigh, CategorySecurity},
	EventTamperDetected:        {SeverityCritical, CategorySecurity},
	EventAuditLogCleanup:       {SeverityLow, CategoryCompliance},
	EventAuditLogFailure:       {SeverityHigh, CategorySecurity},
	EventRetentionExecuted:     {SeverityLow, CategoryCompliance},
	EventLegalHoldAdded:        {SeverityHigh, CategoryCompliance},
	EventLegalHoldRemoved:      {SeverityHigh, CategoryCompliance},
	EventGDPRDeleteRequested:   {SeverityHigh, CategoryCompliance},
	EventGDPRDeleteCompleted:   {SeverityHigh, CategoryCompliance},
	EventGDPRDeleteFailed:      {SeverityCritical, CategoryCompliance},
	EventConfigChanged:         {SeverityMedium, CategoryConfiguration},
}

// Classify derives severity and category for an event type. Failed
// operations are never classified below medium.
func Classify(eventType EventType, success bool) (Severity, Category) {
	cls, ok := classifications[eventType]
	if !ok {
		cls = classification{SeverityMedium, CategorySecurity}
	}
	if !success && cls.severity == SeverityLow {
		cls.severity = SeverityMedium
	}
	return cls.severity, cls.category
}
