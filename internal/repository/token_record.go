package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bingify/tokenvault/internal/crypto"
	"github.com/bingify/tokenvault/internal/domain"
	"github.com/bingify/tokenvault/internal/expiry"
)

// tokenRecord is the JSON payload sealed into the ciphertext column. The row
// itself only exposes the (user_id, provider) key and bookkeeping timestamps.
type tokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

func sealTokenRecord(enc *crypto.Encryptor, in domain.TokenUpsert) (string, error) {
	record := tokenRecord{
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
	}
	if in.ExpiresAt != nil {
		record.ExpiresAt = in.ExpiresAt.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal token record: %w", err)
	}
	return enc.Seal(payload)
}

// openTokenRecord decrypts and shape-validates a stored payload. The column is
// written by an external-facing boundary, so nothing about its contents is
// trusted: an empty access token rejects the record, while an unparsable
// expiry degrades to "no expiry" rather than failing the read.
func openTokenRecord(enc *crypto.Encryptor, ciphertext string) (tokenRecord, *time.Time, error) {
	payload, err := enc.Open(ciphertext)
	if err != nil {
		return tokenRecord{}, nil, fmt.Errorf("open token record: %w", err)
	}
	var record tokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return tokenRecord{}, nil, fmt.Errorf("%w: decode payload: %v", domain.ErrInvalidTokenRecord, err)
	}
	if record.AccessToken == "" {
		return tokenRecord{}, nil, fmt.Errorf("%w: missing access token", domain.ErrInvalidTokenRecord)
	}
	return record, expiry.ParseExpiresAt(record.ExpiresAt), nil
}
