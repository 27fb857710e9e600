package retention

import "time"

type DataClass string

const (
	ClassTokens    DataClass = "tokens"
	ClassAuditLogs DataClass = "audit_logs"
	ClassSyncLogs  DataClass = "sync_logs"
	ClassBackfills DataClass = "backfill_records"
)

// Policy is one named retention rule for a data class. Policies are
// durable rows; the service keeps a read-through cache on top.
type Policy struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	DataClass             DataClass      `json:"dataClass"`
	RetentionDays         int            `json:"retentionDays"`
	CriticalRetentionDays int            `json:"criticalRetentionDays,omitempty"`
	TeamOverrides         map[string]int `json:"teamOverrides,omitempty"`
	PreserveCount         int            `json:"preserveCount,omitempty"`
	Schedule              Schedule       `json:"schedule"`
	Enabled               bool           `json:"enabled"`
	LegalHoldExempt       bool           `json:"legalHoldExempt"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

type Schedule string

const (
	ScheduleDaily   Schedule = "daily"
	ScheduleWeekly  Schedule = "weekly"
	ScheduleMonthly Schedule = "monthly"
)

// Period is the cadence as a duration, for overdue checks.
func (s Schedule) Period() time.Duration {
	switch s {
	case ScheduleWeekly:
		return 7 * 24 * time.Hour
	case ScheduleMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// LegalHold suspends deletion for a team/data-class pair until lifted
// or expired. Rows named in ExemptIDs remain deletable.
type LegalHold struct {
	ID        string     `json:"id"`
	TeamID    string     `json:"teamId"`
	DataClass DataClass  `json:"dataClass"`
	Reason    string     `json:"reason"`
	CreatedBy string     `json:"createdBy"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	ExemptIDs []string   `json:"exemptIds,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ActiveAt reports whether the hold is in force at the given instant.
func (h *LegalHold) ActiveAt(t time.Time) bool {
	return h.ExpiresAt == nil || h.ExpiresAt.After(t)
}

// Exempts reports whether a specific row id is carved out of the hold.
func (h *LegalHold) Exempts(rowID string) bool {
	for _, id := range h.ExemptIDs {
		if id == rowID {
			return true
		}
	}
	return false
}

// PolicyReport is one policy's execution outcome.
type PolicyReport struct {
	PolicyName     string    `json:"policyName"`
	DataClass      DataClass `json:"dataClass"`
	Deleted        int64     `json:"deleted"`
	RetainedByHold int64     `json:"retainedByHold"`
	RetainedByRule int64     `json:"retainedByRule"`
	BytesFreedEst  int64     `json:"bytesFreedEstimate"`
	DryRun         bool      `json:"dryRun"`
	Skipped        bool      `json:"skipped,omitempty"`
	SkipReason     string    `json:"skipReason,omitempty"`
	Errors         []string  `json:"errors,omitempty"`
	ExecutedAt     time.Time `json:"executedAt"`
}

type ComplianceStatus string

const (
	StatusCompliant ComplianceStatus = "compliant"
	StatusWarning   ComplianceStatus = "warning"
	StatusViolation ComplianceStatus = "violation"
)

// Summary is the operator-facing compliance rollup.
type Summary struct {
	Status          ComplianceStatus `json:"status"`
	EnabledPolicies int              `json:"enabledPolicies"`
	ActiveHolds     int              `json:"activeHolds"`
	OverduePolicies int              `json:"overduePolicies"`
	Issues          []string         `json:"issues,omitempty"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}
