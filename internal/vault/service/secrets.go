package service

import (
	"context"

	"passq/internal/audit"
	"passq/internal/crypto"
	"passq/internal/platform/tracer"
	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// CreateSecret encrypts the plaintext under the current key version and
// stores the record. Plaintext never reaches the store or the audit trail.
func (s *Service) CreateSecret(ctx context.Context, userID, name string, plaintext []byte) (*models.Secret, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSecretWrite, tracer.String(tracer.AttrUserID, userID))
	var retErr error
	defer func() { span.End(retErr) }()

	blob, err := s.keyring.Encrypt(plaintext)
	if err != nil {
		retErr = err
		return nil, err
	}
	span.SetAttributes(tracer.Int64(tracer.AttrKeyVersion, int64(blob.Version)))

	record, err := models.NewSecret(userID, name, crypto.EncodeBlob(blob), s.now())
	if err != nil {
		retErr = err
		return nil, err
	}
	if err := s.secrets.Create(ctx, record); err != nil {
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "could not store secret")
		return nil, retErr
	}

	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventSecretCreated,
		UserID:     userID,
		ResourceID: record.ID,
	})
	return record, nil
}

// ReadSecret loads and decrypts one of the user's secrets.
func (s *Service) ReadSecret(ctx context.Context, userID, secretID string) (string, []byte, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSecretRead,
		tracer.String(tracer.AttrUserID, userID))
	var retErr error
	defer func() { span.End(retErr) }()

	record, err := s.secrets.Find(ctx, userID, secretID)
	if err != nil {
		retErr = err
		return "", nil, err
	}
	blob, err := crypto.DecodeBlob(record.EncryptedData)
	if err != nil {
		retErr = err
		return "", nil, err
	}
	span.SetAttributes(tracer.Int64(tracer.AttrKeyVersion, int64(blob.Version)))

	plaintext, err := s.keyring.Decrypt(blob)
	if err != nil {
		// A failed decrypt on stored data is a serious signal, not a
		// routine error.
		s.logger.ErrorContext(ctx, "stored secret failed decryption",
			"secret_id", secretID, "user_id", userID, "error", err)
		retErr = err
		return "", nil, err
	}

	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventSecretViewed,
		UserID:     userID,
		ResourceID: record.ID,
	})
	return record.Name, plaintext, nil
}

// UpdateSecret re-encrypts the record under the current key version. An
// update is also how an old record migrates to a rotated key.
func (s *Service) UpdateSecret(ctx context.Context, userID, secretID, name string, plaintext []byte) error {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSecretWrite, tracer.String(tracer.AttrUserID, userID))
	var retErr error
	defer func() { span.End(retErr) }()

	record, err := s.secrets.Find(ctx, userID, secretID)
	if err != nil {
		retErr = err
		return err
	}
	blob, err := s.keyring.Encrypt(plaintext)
	if err != nil {
		retErr = err
		return err
	}
	if name != "" {
		record.Name = name
	}
	record.EncryptedData = crypto.EncodeBlob(blob)
	record.UpdatedAt = s.now()
	if err := s.secrets.Update(ctx, record); err != nil {
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "could not update secret")
		return retErr
	}

	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventSecretUpdated,
		UserID:     userID,
		ResourceID: record.ID,
	})
	return nil
}

// DeleteSecret removes one of the user's secrets.
func (s *Service) DeleteSecret(ctx context.Context, userID, secretID string) error {
	if err := s.secrets.Delete(ctx, userID, secretID); err != nil {
		return err
	}
	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventSecretDeleted,
		UserID:     userID,
		ResourceID: secretID,
	})
	return nil
}

// ListSecrets returns the user's secret records. Only metadata leaves this
// method; the encrypted payloads are cleared.
func (s *Service) ListSecrets(ctx context.Context, userID string) ([]*models.Secret, error) {
	records, err := s.secrets.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		record.EncryptedData = nil
	}
	return records, nil
}
