package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// Decryptor opens candidate payloads under their own tenant digest.
type Decryptor struct {
	envelope *crypto.Envelope
	logger   *logging.Logger
}

// NewDecryptor wires the envelope used for all candidate decryption.
func NewDecryptor(envelope *crypto.Envelope, logger *logging.Logger) *Decryptor {
	return &Decryptor{envelope: envelope, logger: logger.Named("decrypt")}
}

// Decrypt opens a candidate's text and metadata with AAD equal to the
// candidate's stored tenant digest. An authentication failure here should
// be impossible for a row the policy let through, so it is counted as an
// anomaly and surfaced as ErrAuthenticationFailure; callers drop the
// candidate and carry on.
func (d *Decryptor) Decrypt(ctx context.Context, c Candidate) (Plain, error) {
	aad := []byte(c.TenantHash)

	text, err := d.envelope.Open(c.TextCiphertext, aad)
	if err != nil {
		return Plain{}, d.anomaly(ctx, c, "text", err)
	}
	metaJSON, err := d.envelope.Open(c.MetadataCiphertext, aad)
	if err != nil {
		return Plain{}, d.anomaly(ctx, c, "metadata", err)
	}

	var meta map[string]string
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return Plain{}, fmt.Errorf("memstore: decoding metadata for %s: %w", c.ID, err)
	}
	return Plain{Text: string(text), Metadata: meta}, nil
}

func (d *Decryptor) anomaly(ctx context.Context, c Candidate, field string, err error) error {
	if errors.Is(err, crypto.ErrAuthenticationFailure) {
		decryptAnomaliesTotal.Inc()
		d.logger.Error(ctx, "candidate ciphertext failed to authenticate",
			zap.String("chunk.id", c.ID.String()),
			zap.String("field", field))
		return crypto.ErrAuthenticationFailure
	}
	return fmt.Errorf("memstore: opening %s for %s: %w", field, c.ID, err)
}
