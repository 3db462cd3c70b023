package license

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestValidateAcceptsWellFormedToken(t *testing.T) {
	key := []byte("test-signing-key")
	claims := Claims{
		DeploymentID: "dep-1",
		Edition:      "standard",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := signToken(t, claims, key)

	entitlement, err := Validate(token, key)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if entitlement.DeploymentID != "dep-1" {
		t.Errorf("DeploymentID = %q, want dep-1", entitlement.DeploymentID)
	}
	if !entitlement.AllowsRecordSize(24) || !entitlement.AllowsRecordSize(28) {
		t.Error("standard edition should allow record sizes 24 and 28")
	}
	if entitlement.AllowsRecordSize(32) {
		t.Error("standard edition should not allow record size 32")
	}
}

func TestValidateRejectsUnknownEdition(t *testing.T) {
	key := []byte("test-signing-key")
	claims := Claims{DeploymentID: "dep-1", Edition: "nonexistent"}
	token := signToken(t, claims, key)

	if _, err := Validate(token, key); err == nil {
		t.Fatal("expected an error for an unknown edition")
	}
}

func TestValidateRejectsWrongKey(t *testing.T) {
	claims := Claims{DeploymentID: "dep-1", Edition: "lite"}
	token := signToken(t, claims, []byte("key-a"))

	if _, err := Validate(token, []byte("key-b")); err == nil {
		t.Fatal("expected an error when the signing key does not match")
	}
}

func TestExpiresWithin(t *testing.T) {
	soon := &Entitlement{ExpiresAt: time.Now().Add(time.Minute)}
	if !soon.ExpiresWithin(time.Hour) {
		t.Error("entitlement expiring in a minute should report ExpiresWithin(1h) = true")
	}

	farOut := &Entitlement{ExpiresAt: time.Now().Add(24 * time.Hour)}
	if farOut.ExpiresWithin(time.Hour) {
		t.Error("entitlement expiring in a day should report ExpiresWithin(1h) = false")
	}

	noExpiry := &Entitlement{}
	if noExpiry.ExpiresWithin(24 * time.Hour) {
		t.Error("an entitlement with no exp claim should never report as expiring")
	}
}
