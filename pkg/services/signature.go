package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/veridoc/veridoc/pkg/models"
)

// ErrSignatureInvalid indicates an e-signature manifest that failed
// verification for any reason: malformed, signer mismatch, or rejected
// credentials.
var ErrSignatureInvalid = errors.New("e-signature verification failed")

// SignatureVerifier verifies the e-signature manifest accompanying a
// signature-gated transition (Approve, Reject, Publish, Archive).
type SignatureVerifier interface {
	Verify(ctx context.Context, actor models.Actor, action models.Action, manifest []byte) error
}

// CredentialChecker re-validates the signer's credentials against the
// identity provider. Signature-gated transitions require credential re-entry;
// a cached session is not sufficient.
type CredentialChecker interface {
	Check(ctx context.Context, userID string, credential json.RawMessage) error
}

// HTTPCredentialChecker re-validates credentials against the identity
// provider's verification endpoint.
type HTTPCredentialChecker struct {
	endpoint string
	client   *http.Client
}

// NewHTTPCredentialChecker creates a checker posting to the given endpoint.
func NewHTTPCredentialChecker(endpoint string) *HTTPCredentialChecker {
	return &HTTPCredentialChecker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPCredentialChecker) Check(ctx context.Context, userID string, credential json.RawMessage) error {
	body, err := json.Marshal(map[string]any{
		"user_id":    userID,
		"credential": credential,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credential check: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build credential check request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("credential check request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity provider rejected credentials: status %d", resp.StatusCode)
	}

	return nil
}

// signatureManifestSchema describes the manifest clients submit with
// signature-gated actions: who signs, what the signature means, and the
// re-entered credential to validate.
const signatureManifestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["user_id", "meaning", "signed_at", "credential"],
	"properties": {
		"user_id": {"type": "string", "minLength": 1},
		"meaning": {"type": "string", "minLength": 1},
		"signed_at": {"type": "string", "format": "date-time"},
		"credential": {"type": "object"}
	},
	"additionalProperties": false
}`

type signatureManifest struct {
	UserID     string          `json:"user_id"`
	Meaning    string          `json:"meaning"`
	SignedAt   string          `json:"signed_at"`
	Credential json.RawMessage `json:"credential"`
}

// ManifestVerifier validates signature manifests against the JSON schema and
// delegates credential re-validation to the identity collaborator.
type ManifestVerifier struct {
	schema      *gojsonschema.Schema
	credentials CredentialChecker
}

// NewManifestVerifier compiles the manifest schema and wires the credential
// checker.
func NewManifestVerifier(credentials CredentialChecker) (*ManifestVerifier, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(signatureManifestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile signature manifest schema: %w", err)
	}

	return &ManifestVerifier{
		schema:      schema,
		credentials: credentials,
	}, nil
}

// Verify checks the manifest shape, that the signer is the acting user, and
// that the re-entered credential is valid. Every failure collapses into
// ErrSignatureInvalid with detail; callers surface it as a guard failure.
func (v *ManifestVerifier) Verify(ctx context.Context, actor models.Actor, action models.Action, manifest []byte) error {
	if len(manifest) == 0 {
		return fmt.Errorf("%w: manifest is empty", ErrSignatureInvalid)
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(manifest))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if !result.Valid() {
		return fmt.Errorf("%w: %s", ErrSignatureInvalid, result.Errors()[0].String())
	}

	var parsed signatureManifest

	err = json.Unmarshal(manifest, &parsed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if parsed.UserID != actor.ID {
		return fmt.Errorf("%w: manifest signer %s is not the acting user", ErrSignatureInvalid, parsed.UserID)
	}

	err = v.credentials.Check(ctx, parsed.UserID, parsed.Credential)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	return nil
}
