package service

import (
	"context"
	"errors"

	"passq/internal/audit"
	"passq/internal/vault/device"
	"passq/internal/vault/models"
	"passq/internal/vault/store/policy"
	dErrors "passq/pkg/domain-errors"
)

// ErrDeviceBlocked is returned when a login arrives from a device an
// operator or policy has blocked.
var ErrDeviceBlocked = dErrors.New(dErrors.CodeDeviceBlocked, "device is blocked")

// registerDevice records the device sighting for this login and refuses
// blocked devices. First sightings start untrusted.
func (s *Service) registerDevice(ctx context.Context, userID, fingerprint, deviceType string, req LoginRequest) error {
	if fingerprint == "" {
		// Device binding disabled; nothing to track.
		return nil
	}

	known, err := s.policies.FindDevice(ctx, userID, fingerprint)
	if err != nil {
		if !errors.Is(err, policy.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not look up device")
		}
		fresh := models.NewTrustedDevice(userID, fingerprint, device.DisplayName(req.UserAgent), deviceType, req.IPAddress, s.now())
		if err := s.policies.SaveDevice(ctx, fresh); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "could not save device")
		}
		s.raiseSecurityEvent(ctx, models.NewSecurityEvent("", userID, "new_device",
			models.SeverityLow, "login from a device not seen before", s.now()))
		return nil
	}

	if known.IsBlocked() {
		s.incrementAuthFailure()
		s.logAudit(ctx, audit.Record{
			EventType:  audit.EventDeviceBlocked,
			UserID:     userID,
			ResourceID: known.ID,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
		})
		s.raiseSecurityEvent(ctx, models.NewSecurityEvent("", userID, "blocked_device_login",
			models.SeverityHigh, "login attempt from a blocked device", s.now()))
		return ErrDeviceBlocked
	}

	known.RecordSeen(req.IPAddress, s.now())
	if err := s.policies.SaveDevice(ctx, known); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not update device")
	}
	return nil
}

// PromoteDevice marks a device trusted.
func (s *Service) PromoteDevice(ctx context.Context, userID, fingerprint string) error {
	known, err := s.policies.FindDevice(ctx, userID, fingerprint)
	if err != nil {
		return err
	}
	known.Promote(s.now())
	if err := s.policies.SaveDevice(ctx, known); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not update device")
	}
	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventDeviceTrusted,
		UserID:     userID,
		ResourceID: known.ID,
	})
	return nil
}

// BlockDevice marks a device blocked and terminates its active sessions.
func (s *Service) BlockDevice(ctx context.Context, userID, fingerprint string) error {
	known, err := s.policies.FindDevice(ctx, userID, fingerprint)
	if err != nil {
		return err
	}
	known.Block(s.now())
	if err := s.policies.SaveDevice(ctx, known); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not update device")
	}

	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not list sessions")
	}
	for _, sess := range sessions {
		if sess.DeviceFingerprint != fingerprint || !sess.IsActive() {
			continue
		}
		if _, err := s.terminateSession(ctx, sess.ID, "device_blocked"); err != nil {
			return err
		}
	}

	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventDeviceBlocked,
		UserID:     userID,
		ResourceID: known.ID,
	})
	return nil
}

// ListDevices returns the devices seen for the user.
func (s *Service) ListDevices(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	return s.policies.ListDevices(ctx, userID)
}
