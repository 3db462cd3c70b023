// Package license validates the build-entitlement token a caller passes
// to mmdbtree-build: a signed JWT naming which database editions the
// holder is allowed to produce.
//
// Grounded on the teacher's pkg/singleton/token.go (TokenManager,
// BootstrapClaims) and pkg/api/bootstrap.go, adapted from a
// refresh-on-an-interval bootstrap flow (appropriate for a long-lived
// Traefik middleware) to a single up-front check (appropriate for a
// one-shot CLI build). The teacher manually decoded JWT payloads to work
// around a Yaegi interpreter limitation (see the comment in its
// ParseBootstrapToken); this tool runs as a normal compiled binary, so it
// uses golang-jwt/jwt/v5's real Parse/Claims machinery instead.
package license

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies what a build-entitlement token authorizes: which
// database edition (record size / feature set) the holder may build, and
// for which deployment.
type Claims struct {
	DeploymentID string `json:"deployment_id"`
	Edition      string `json:"edition"`
	jwt.RegisteredClaims
}

// Entitlement is the validated result of checking a token: the deployment
// it was issued to and the maximum record size it authorizes.
type Entitlement struct {
	DeploymentID     string
	Edition          string
	MaxRecordSizeBit int
	ExpiresAt        time.Time
}

var editionMaxRecordSize = map[string]int{
	"lite":       24,
	"standard":   28,
	"enterprise": 32,
}

// Validate parses and verifies token against signingKey (HMAC), returning
// the entitlement it grants. Expired or malformed tokens, and tokens
// naming an unknown edition, are rejected.
func Validate(token string, signingKey []byte) (*Entitlement, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method)
		}
		return signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, fmt.Errorf("license: invalid token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("license: token failed validation")
	}

	maxRecordSize, ok := editionMaxRecordSize[claims.Edition]
	if !ok {
		return nil, fmt.Errorf("license: unknown edition %q", claims.Edition)
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &Entitlement{
		DeploymentID:     claims.DeploymentID,
		Edition:          claims.Edition,
		MaxRecordSizeBit: maxRecordSize,
		ExpiresAt:        expiresAt,
	}, nil
}

// AllowsRecordSize reports whether e's edition may build a database with
// the given record_size (24/28/32 bits per node).
func (e *Entitlement) AllowsRecordSize(recordSize int) bool {
	return recordSize <= e.MaxRecordSizeBit
}

// ExpiresWithin reports whether the entitlement's token expires before
// the given duration elapses, so a caller building on a schedule can warn
// ahead of a lapsed license. A zero ExpiresAt (no "exp" claim) never
// counts as expiring.
func (e *Entitlement) ExpiresWithin(d time.Duration) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(e.ExpiresAt) < d
}
