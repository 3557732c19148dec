package audit

import "time"

// EventType identifies the kind of action an entry records.
type EventType string

const (
	EventUserLogin           EventType = "user_login"
	EventUserLogout          EventType = "user_logout"
	EventUserRegistration    EventType = "user_registration"
	EventSecretCreated       EventType = "secret_created"
	EventSecretUpdated       EventType = "secret_updated"
	EventSecretDeleted       EventType = "secret_deleted"
	EventSecretViewed        EventType = "secret_viewed"
	EventTokenIssued         EventType = "token_issued"
	EventTokenRefreshed      EventType = "token_refreshed"
	EventTokenRevoked        EventType = "token_revoked"
	EventTokenReuseDetected  EventType = "token_reuse_detected"
	EventSessionTerminated   EventType = "session_terminated"
	EventMFAEnrolled         EventType = "mfa_enrolled"
	EventMFAVerified         EventType = "mfa_verified"
	EventMFAFailed           EventType = "mfa_failed"
	EventDeviceTrusted       EventType = "device_trusted"
	EventDeviceBlocked       EventType = "device_blocked"
	EventSecurityEventRaised EventType = "security_event_raised"
)

// Record is the caller-supplied portion of an audit entry. The ledger fills
// in sequence, timestamp, and chain hashes on append.
type Record struct {
	EventType  EventType
	UserID     string
	ResourceID string
	IPAddress  string
	UserAgent  string
	Details    string
}

// Entry is a committed ledger entry. Hash authenticates the entry's fields
// plus PrevHash, linking each entry to its predecessor so any in-place edit,
// deletion, or reordering breaks the chain from that point forward.
type Entry struct {
	Sequence   uint64
	EventType  EventType
	UserID     string
	ResourceID string
	IPAddress  string
	UserAgent  string
	Details    string
	Timestamp  time.Time
	PrevHash   string
	Hash       string
}
