package models

import (
	"time"

	"github.com/google/uuid"
)

// Default session policy values applied when a user has no stored limits.
const (
	DefaultMaxConcurrentSessions = 5
	DefaultMaxSessionsPerDevice  = 3
	DefaultSessionTimeout        = 15 * time.Minute
	DefaultRefreshTimeout        = 7 * 24 * time.Hour
)

// SessionLimits is the per-user session admission policy.
type SessionLimits struct {
	UserID                string
	MaxConcurrentSessions int
	MaxSessionsPerDevice  int
	SessionTimeout        time.Duration
	RefreshTimeout        time.Duration
	EnforceSingleSession  bool
	AllowConcurrentMobile bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DefaultSessionLimits returns the policy applied to users without an
// explicit configuration.
func DefaultSessionLimits(userID string) *SessionLimits {
	return &SessionLimits{
		UserID:                userID,
		MaxConcurrentSessions: DefaultMaxConcurrentSessions,
		MaxSessionsPerDevice:  DefaultMaxSessionsPerDevice,
		SessionTimeout:        DefaultSessionTimeout,
		RefreshTimeout:        DefaultRefreshTimeout,
		EnforceSingleSession:  false,
		AllowConcurrentMobile: true,
	}
}

// TrustLevel classifies how much a device is trusted.
type TrustLevel string

const (
	TrustLevelUntrusted  TrustLevel = "untrusted"
	TrustLevelTrusted    TrustLevel = "trusted"
	TrustLevelBlocked    TrustLevel = "blocked"
	TrustLevelSuspicious TrustLevel = "suspicious"
)

// maxTrackedIPs caps the IP history kept per device.
const maxTrackedIPs = 10

// Trust score adjustments applied per sighting. A sighting from an IP
// already in the device's history counts as consistent; a previously unseen
// IP counts as an anomaly. The fingerprint itself pins the user agent, so
// UA consistency is implied by matching the device at all.
const (
	trustGainConsistent = 5
	trustPenaltyAnomaly = 15
	maxTrustScore       = 100

	// An untrusted device whose score is exhausted by anomalies is marked
	// suspicious; it clears once consistent history rebuilds the score.
	suspicionClearScore = 20
)

// TrustedDevice tracks a device observed for a user. Devices start
// untrusted and accumulate history; operators or policy can promote them
// to trusted or demote them to blocked.
type TrustedDevice struct {
	ID           string
	UserID       string
	Fingerprint  string
	DeviceName   string
	DeviceType   string
	TrustLevel   TrustLevel
	TrustScore   int
	IPAddresses  []string
	SessionCount int
	FirstSeen    time.Time
	LastSeen     time.Time
	UpdatedAt    time.Time
}

// NewTrustedDevice registers a first sighting. New devices always start
// untrusted with a zero score.
func NewTrustedDevice(userID, fingerprint, deviceName, deviceType, ip string, now time.Time) *TrustedDevice {
	d := &TrustedDevice{
		ID:           uuid.NewString(),
		UserID:       userID,
		Fingerprint:  fingerprint,
		DeviceName:   deviceName,
		DeviceType:   deviceType,
		TrustLevel:   TrustLevelUntrusted,
		TrustScore:   0,
		SessionCount: 1,
		FirstSeen:    now,
		LastSeen:     now,
		UpdatedAt:    now,
	}
	if ip != "" {
		d.IPAddresses = []string{ip}
	}
	return d
}

// RecordSeen updates sighting metadata for a subsequent session from this
// device and adjusts the trust score: known IPs raise it, unseen IPs lower
// it. Only the most recent IPs are retained.
func (d *TrustedDevice) RecordSeen(ip string, now time.Time) {
	d.LastSeen = now
	d.UpdatedAt = now
	d.SessionCount++
	if ip == "" {
		return
	}
	for _, known := range d.IPAddresses {
		if known == ip {
			d.raiseScore(trustGainConsistent)
			return
		}
	}
	d.lowerScore(trustPenaltyAnomaly)
	d.IPAddresses = append(d.IPAddresses, ip)
	if len(d.IPAddresses) > maxTrackedIPs {
		d.IPAddresses = d.IPAddresses[len(d.IPAddresses)-maxTrackedIPs:]
	}
}

func (d *TrustedDevice) raiseScore(n int) {
	d.TrustScore += n
	if d.TrustScore > maxTrustScore {
		d.TrustScore = maxTrustScore
	}
	if d.TrustLevel == TrustLevelSuspicious && d.TrustScore >= suspicionClearScore {
		d.TrustLevel = TrustLevelUntrusted
	}
}

func (d *TrustedDevice) lowerScore(n int) {
	d.TrustScore -= n
	if d.TrustScore < 0 {
		d.TrustScore = 0
	}
	if d.TrustScore == 0 && d.TrustLevel == TrustLevelUntrusted {
		d.TrustLevel = TrustLevelSuspicious
	}
}

// IsBlocked reports whether sessions from this device must be refused.
func (d *TrustedDevice) IsBlocked() bool {
	return d.TrustLevel == TrustLevelBlocked
}

// Promote marks the device trusted.
func (d *TrustedDevice) Promote(now time.Time) {
	d.TrustLevel = TrustLevelTrusted
	d.UpdatedAt = now
}

// Block marks the device blocked. Blocked devices fail session admission.
func (d *TrustedDevice) Block(now time.Time) {
	d.TrustLevel = TrustLevelBlocked
	d.UpdatedAt = now
}

// MonitoringRule is a configurable detection rule evaluated against session
// activity. Conditions form a small boolean tree over event fields; Actions
// name the responses to take when the rule fires within its window.
type MonitoringRule struct {
	ID            string
	Name          string
	RuleType      string
	Enabled       bool
	Severity      Severity
	Conditions    []byte // JSON condition tree
	Actions       []string
	Threshold     int
	TimeWindow    time.Duration
	LastTriggered *time.Time
	TriggerCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RecordTrigger notes that the rule fired.
func (r *MonitoringRule) RecordTrigger(now time.Time) {
	r.TriggerCount++
	if r.LastTriggered == nil || now.After(*r.LastTriggered) {
		r.LastTriggered = &now
	}
}
