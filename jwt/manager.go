package jwt

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/scalebench/authcore/seal"
)

const (
	// SchemaVersion tags every issued token with the claim layout version.
	SchemaVersion = "1.0"
	// KindAccess is the token-kind discriminator for access tokens.
	KindAccess = "access"
	// KindRefresh is the token-kind discriminator for refresh tokens.
	KindRefresh = "refresh"

	minSecretLen = 32
)

var (
	// ErrExpired is returned for structurally valid tokens past their expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for malformed tokens, bad signatures, and claim
	// violations (issuer, audience, algorithm, schema version).
	ErrInvalid = errors.New("invalid token")
	// ErrWrongKind is returned when a verified token carries the wrong
	// token-kind discriminator for the operation.
	ErrWrongKind = errors.New("wrong token kind")
	// ErrRevoked is returned when a refresh token is present in the ledger.
	ErrRevoked = errors.New("token revoked")
	// ErrDeviceMismatch is returned when the decrypted device binding does
	// not match the presenting request. This is the anti-theft guarantee.
	ErrDeviceMismatch = errors.New("device binding mismatch")
	// ErrAlreadyExpired is returned by Revoke for tokens whose expiry has
	// passed; an expired token cannot be usefully revoked.
	ErrAlreadyExpired = errors.New("token already expired")
)

// Denylist is the revocation ledger consulted on every refresh verification.
// The Manager consults the ledger; it never owns it.
type Denylist interface {
	Put(ctx context.Context, token string, ttl time.Duration) error
	Has(ctx context.Context, token string) (bool, error)
}

// Config holds token engine parameters. Access and refresh envelopes are
// signed with distinct HMAC-SHA256 secrets; refresh payloads are encrypted
// under a separate 32-byte AEAD key, so possession of a signing secret alone
// does not disclose device-binding data.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	EncryptionKey []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Manager issues and verifies the token pair.
type Manager struct {
	config Config
	deny   Denylist
}

// AccessClaims is the signed claim set of an access token.
type AccessClaims struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId"`
	Version   string `json:"ver"`
	Kind      string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the signed envelope of a refresh token. The sensitive
// payload travels encrypted in Payload/IV/AuthTag; the envelope itself
// carries no device-binding data in the clear.
type RefreshClaims struct {
	Payload string `json:"payload"`
	IV      string `json:"iv"`
	AuthTag string `json:"tag"`
	Version string `json:"ver"`
	Kind    string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshPayload is the decrypted device-binding payload of a refresh token.
type RefreshPayload struct {
	UserID      string `json:"userId"`
	DeviceID    string `json:"deviceId"`
	Fingerprint string `json:"fingerprint"`
	Rotation    int    `json:"rotation"`
}

// NewManager validates the configuration and returns a Manager bound to the
// given revocation ledger.
func NewManager(cfg Config, deny Denylist) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if len(cfg.AccessSecret) < minSecretLen {
		return nil, fmt.Errorf("access secret must be at least %d bytes", minSecretLen)
	}
	if len(cfg.RefreshSecret) < minSecretLen {
		return nil, fmt.Errorf("refresh secret must be at least %d bytes", minSecretLen)
	}
	if len(cfg.EncryptionKey) != seal.KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes", seal.KeySize)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if deny == nil {
		return nil, errors.New("denylist is required")
	}

	return &Manager{config: cfg, deny: deny}, nil
}

// IssueAccess mints a signed access token for the principal. The returned
// expiry is the absolute exp claim value, iat + AccessTTL exactly.
func (m *Manager) IssueAccess(userID, role, companyID string) (string, time.Time, error) {
	// exp serializes as whole epoch seconds; drop sub-second precision so the
	// returned expiry equals the claim byte for byte.
	now := time.Now().Truncate(time.Second)
	exp := now.Add(m.config.AccessTTL)

	claims := AccessClaims{
		UserID:    userID,
		Role:      role,
		CompanyID: companyID,
		Version:   SchemaVersion,
		Kind:      KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// IssueRefresh mints a signed refresh token whose device-binding payload is
// encrypted before it enters the envelope. Rotation carries the rotation
// counter forward across refresh cycles; first issuance passes 0.
func (m *Manager) IssueRefresh(userID, deviceID, fingerprint string, rotation int) (string, error) {
	payload, err := json.Marshal(RefreshPayload{
		UserID:      userID,
		DeviceID:    deviceID,
		Fingerprint: fingerprint,
		Rotation:    rotation,
	})
	if err != nil {
		return "", err
	}

	box, err := seal.Encrypt(payload, m.config.EncryptionKey)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := RefreshClaims{
		Payload: base64.StdEncoding.EncodeToString(box.Ciphertext),
		IV:      base64.StdEncoding.EncodeToString(box.IV),
		AuthTag: base64.StdEncoding.EncodeToString(box.AuthTag),
		Version: SchemaVersion,
		Kind:    KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshSecret)
}

// VerifyAccess validates signature, issuer, audience, algorithm, and expiry,
// then the token kind. Kind is only trusted after the signature verifies.
func (m *Manager) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %q", ErrInvalid, claims.Version)
	}
	if claims.Kind != KindAccess {
		return nil, ErrWrongKind
	}
	return claims, nil
}

// VerifyRefresh performs the full refresh validation sequence: ledger lookup,
// signature and claim verification, payload decryption, and byte-exact
// device-binding comparison. Any mismatch of device id or fingerprint fails
// with ErrDeviceMismatch; a stolen token is unusable from another client
// context.
func (m *Manager) VerifyRefresh(ctx context.Context, token, deviceID, fingerprint string) (*RefreshPayload, *RefreshClaims, error) {
	revoked, err := m.deny.Has(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, ErrRevoked
	}

	claims := &RefreshClaims{}
	if err := m.parse(token, claims, m.config.RefreshSecret); err != nil {
		return nil, nil, err
	}
	if claims.Version != SchemaVersion {
		return nil, nil, fmt.Errorf("%w: unsupported schema version %q", ErrInvalid, claims.Version)
	}
	if claims.Kind != KindRefresh {
		return nil, nil, ErrWrongKind
	}

	payload, err := m.decryptPayload(claims)
	if err != nil {
		return nil, nil, err
	}

	deviceOK := subtle.ConstantTimeCompare([]byte(payload.DeviceID), []byte(deviceID)) == 1
	fingerprintOK := subtle.ConstantTimeCompare([]byte(payload.Fingerprint), []byte(fingerprint)) == 1
	if !deviceOK || !fingerprintOK {
		return nil, nil, ErrDeviceMismatch
	}

	return payload, claims, nil
}

// Revoke writes the refresh token into the ledger for its remaining lifetime.
// Only refresh-kind tokens are accepted; anything else gets ErrWrongKind.
// The token is decoded without signature verification: a token past expiry
// cannot be usefully revoked regardless of its provenance, and the ledger key
// is the presented string itself.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims := &RefreshClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.Kind != KindRefresh {
		return ErrWrongKind
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing exp claim", ErrInvalid)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return ErrAlreadyExpired
	}

	return m.deny.Put(ctx, token, remaining)
}

func (m *Manager) parse(token string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}

func (m *Manager) decryptPayload(claims *RefreshClaims) (*RefreshPayload, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(claims.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	iv, err := base64.StdEncoding.DecodeString(claims.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	tag, err := base64.StdEncoding.DecodeString(claims.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	plaintext, err := seal.Decrypt(seal.Box{Ciphertext: ciphertext, IV: iv, AuthTag: tag}, m.config.EncryptionKey)
	if err != nil {
		return nil, err
	}

	payload := &RefreshPayload{}
	if err := json.Unmarshal(plaintext, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return payload, nil
}
