package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/snehith2024/Wallify/internal/auth"
	"github.com/snehith2024/Wallify/internal/backend"
)

type fakeCredentials struct {
	accounts map[string]backend.User
	err      error
}

func (f *fakeCredentials) GetUserByEmail(_ context.Context, email string) (backend.User, bool, error) {
	if f.err != nil {
		return backend.User{}, false, f.err
	}
	account, ok := f.accounts[email]
	return account, ok, nil
}

type fakeGoogle struct {
	claims auth.GoogleClaims
	err    error
}

func (f *fakeGoogle) Verify(context.Context, string) (auth.GoogleClaims, error) {
	return f.claims, f.err
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

func newTestProvider(t *testing.T, credentials CredentialSource, google GoogleTokenVerifier) *Provider {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "wallify-auth",
		Audience:      "wallify-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	provider, err := NewProvider(Config{
		Credentials: credentials,
		Tokens:      issuer,
		Google:      google,
	})
	if err != nil {
		t.Fatalf("failed to construct provider: %v", err)
	}
	return provider
}

func TestObserveDeliversCurrentStateImmediately(t *testing.T) {
	provider := newTestProvider(t, &fakeCredentials{}, nil)

	var states []backend.AuthState
	cancel := provider.ObserveAuthChanges(func(state backend.AuthState) {
		states = append(states, state)
	})
	defer cancel()

	if len(states) != 1 || states[0].SignedIn {
		t.Fatalf("expected an immediate signed-out delivery, got %#v", states)
	}
}

func TestPasswordSignInPublishesSignedInState(t *testing.T) {
	credentials := &fakeCredentials{accounts: map[string]backend.User{
		"demo@wallify.app": {ID: "u1", Email: "demo@wallify.app", Password: hashPassword(t, "hunter2")},
	}}
	provider := newTestProvider(t, credentials, nil)

	var states []backend.AuthState
	cancel := provider.ObserveAuthChanges(func(state backend.AuthState) {
		states = append(states, state)
	})
	defer cancel()

	subject, err := provider.PasswordSignIn(context.Background(), " Demo@Wallify.app ", "hunter2")
	if err != nil {
		t.Fatalf("expected successful sign-in: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("unexpected subject %q", subject)
	}

	last := states[len(states)-1]
	if !last.SignedIn || last.UserID != "u1" {
		t.Fatalf("unexpected published state %#v", last)
	}
}

func TestPasswordSignInRejectsWrongPassword(t *testing.T) {
	credentials := &fakeCredentials{accounts: map[string]backend.User{
		"demo@wallify.app": {ID: "u1", Password: hashPassword(t, "hunter2")},
	}}
	provider := newTestProvider(t, credentials, nil)

	var transitions int
	cancel := provider.ObserveAuthChanges(func(backend.AuthState) { transitions++ })
	defer cancel()

	if _, err := provider.PasswordSignIn(context.Background(), "demo@wallify.app", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid-credentials error, got %v", err)
	}
	if transitions != 1 {
		t.Fatalf("failed sign-in must not publish a transition")
	}
}

func TestPasswordSignInRejectsUnknownEmail(t *testing.T) {
	provider := newTestProvider(t, &fakeCredentials{accounts: map[string]backend.User{}}, nil)

	if _, err := provider.PasswordSignIn(context.Background(), "ghost@wallify.app", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid-credentials error, got %v", err)
	}
}

func TestGoogleSignInMapsEmailToLocalAccount(t *testing.T) {
	credentials := &fakeCredentials{accounts: map[string]backend.User{
		"demo@wallify.app": {ID: "u1", Email: "demo@wallify.app"},
	}}
	google := &fakeGoogle{claims: auth.GoogleClaims{Subject: "google-123", Email: "demo@wallify.app"}}
	provider := newTestProvider(t, credentials, google)

	subject, err := provider.GoogleSignIn(context.Background(), "raw-token")
	if err != nil {
		t.Fatalf("expected successful federated sign-in: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("expected the local account id, got %q", subject)
	}
}

func TestGoogleSignInNormalizesTokenEmail(t *testing.T) {
	credentials := &fakeCredentials{accounts: map[string]backend.User{
		"demo@wallify.app": {ID: "u1", Email: "demo@wallify.app"},
	}}
	google := &fakeGoogle{claims: auth.GoogleClaims{Subject: "google-123", Email: "Demo@Wallify.app"}}
	provider := newTestProvider(t, credentials, google)

	subject, err := provider.GoogleSignIn(context.Background(), "raw-token")
	if err != nil {
		t.Fatalf("expected successful federated sign-in: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("a mixed-case token email must still reach the local account, got %q", subject)
	}
}

func TestGoogleSignInWithoutBackingAccountPublishesGoogleSubject(t *testing.T) {
	google := &fakeGoogle{claims: auth.GoogleClaims{Subject: "google-123", Email: "new@wallify.app"}}
	provider := newTestProvider(t, &fakeCredentials{accounts: map[string]backend.User{}}, google)

	var last backend.AuthState
	cancel := provider.ObserveAuthChanges(func(state backend.AuthState) { last = state })
	defer cancel()

	subject, err := provider.GoogleSignIn(context.Background(), "raw-token")
	if err != nil {
		t.Fatalf("expected sign-in to proceed: %v", err)
	}
	if subject != "google-123" {
		t.Fatalf("expected the google subject, got %q", subject)
	}
	if !last.SignedIn || last.UserID != "google-123" {
		t.Fatalf("unexpected published state %#v", last)
	}
}

func TestGoogleSignInUnavailableWithoutVerifier(t *testing.T) {
	provider := newTestProvider(t, &fakeCredentials{}, nil)

	if _, err := provider.GoogleSignIn(context.Background(), "raw-token"); !errors.Is(err, ErrFederatedUnavailable) {
		t.Fatalf("expected federated-unavailable error, got %v", err)
	}
}

func TestSignOutPublishesSignedOutState(t *testing.T) {
	credentials := &fakeCredentials{accounts: map[string]backend.User{
		"demo@wallify.app": {ID: "u1", Password: hashPassword(t, "hunter2")},
	}}
	provider := newTestProvider(t, credentials, nil)

	if _, err := provider.PasswordSignIn(context.Background(), "demo@wallify.app", "hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if err := provider.SignOut(context.Background()); err != nil {
		t.Fatalf("sign-out failed: %v", err)
	}

	var last backend.AuthState
	cancel := provider.ObserveAuthChanges(func(state backend.AuthState) { last = state })
	defer cancel()

	if last.SignedIn || last.UserID != "" {
		t.Fatalf("expected a signed-out state, got %#v", last)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	provider := newTestProvider(t, &fakeCredentials{}, nil)

	token, expiresIn, err := provider.IssueSessionToken("u1")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", expiresIn)
	}

	subject, err := provider.ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("unexpected subject %q", subject)
	}
}
