package realtime

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnauthenticated rejects a handshake before it reaches the engine.
var ErrUnauthenticated = errors.New("realtime: unauthenticated")

// TokenVerifier is the opaque authentication capability consumed by the
// transport adapters: verify a bearer token and yield a stable user identity.
// Credential mechanics (password hashing, token issuance) live elsewhere.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// hashTokenHex digests a presented token for storage/lookup.
// With a key it is HMAC-SHA256; without, plain SHA-256 for dev.
func hashTokenHex(token string, key []byte) string {
	if len(key) == 0 {
		sum := sha256.Sum256([]byte(token))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}

// StaticTokenVerifier is an in-memory verifier for dev and tests.
// Tokens are held as digests so the raw values never sit in memory maps.
type StaticTokenVerifier struct {
	key    []byte
	byHash map[string]string // token digest -> user id
}

// NewStaticTokenVerifier builds a verifier from a token -> userID map.
func NewStaticTokenVerifier(tokens map[string]string, hmacKey []byte) *StaticTokenVerifier {
	v := &StaticTokenVerifier{
		key:    hmacKey,
		byHash: make(map[string]string, len(tokens)),
	}
	for token, userID := range tokens {
		v.byHash[hashTokenHex(token, hmacKey)] = userID
	}
	return v
}

// Verify resolves a bearer token to a user id.
func (v *StaticTokenVerifier) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	userID, ok := v.byHash[hashTokenHex(token, v.key)]
	if !ok {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// PostgresTokenVerifier resolves bearer tokens against <schema>.api_tokens,
// matching on the stored digest and honoring expiry.
type PostgresTokenVerifier struct {
	pool   *pgxpool.Pool
	schema string
	key    []byte
}

// NewPostgresTokenVerifier constructs a DB-backed verifier.
func NewPostgresTokenVerifier(pool *pgxpool.Pool, schema string, hmacKey []byte) (*PostgresTokenVerifier, error) {
	if pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "ripple"
	}
	if !isValidPGIdent(schema) {
		return nil, errors.New("realtime: invalid schema identifier")
	}
	return &PostgresTokenVerifier{pool: pool, schema: schema, key: hmacKey}, nil
}

// Verify resolves a bearer token to a user id.
func (v *PostgresTokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tokens := pgIdent(v.schema, "api_tokens")

	var userID string
	err := v.pool.QueryRow(ctx,
		`SELECT user_id FROM `+tokens+` WHERE token_hash = $1 AND (expires_at IS NULL OR expires_at > now())`,
		hashTokenHex(token, v.key),
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// BearerToken extracts a token from an Authorization header value or a
// fallback query value. Either may be empty.
func BearerToken(authorization, queryToken string) string {
	const prefix = "Bearer "
	authorization = strings.TrimSpace(authorization)
	if strings.HasPrefix(authorization, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
	}
	return strings.TrimSpace(queryToken)
}
