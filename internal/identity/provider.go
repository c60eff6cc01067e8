// Package identity implements the backend.IdentityProvider contract:
// password and Google federated sign-in against locally stored accounts,
// session JWTs, and auth-state events for observers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/snehith2024/Wallify/internal/auth"
	"github.com/snehith2024/Wallify/internal/backend"
)

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords
	// alike, so a caller cannot probe which of the two failed.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrFederatedUnavailable indicates no Google verifier was configured.
	ErrFederatedUnavailable = errors.New("identity: federated sign-in not configured")

	errMissingCredentialSource = errors.New("identity: credential source required")
	errMissingTokenIssuer      = errors.New("identity: token issuer required")
)

// CredentialSource resolves login emails to stored accounts. The returned
// user carries the bcrypt password hash in its Password field.
type CredentialSource interface {
	GetUserByEmail(ctx context.Context, email string) (backend.User, bool, error)
}

// GoogleTokenVerifier validates a Google ID token and returns its claims.
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (auth.GoogleClaims, error)
}

// Config describes the dependencies required to construct a Provider.
type Config struct {
	Credentials CredentialSource
	Tokens      *auth.TokenIssuer
	Google      GoogleTokenVerifier
	Logger      *zap.Logger
}

// Provider tracks the active identity session and notifies observers of
// every transition. Observer callbacks receive the current state
// immediately on registration, mirroring an auth-state listener that
// always fires once with the initial (possibly signed-out) state.
type Provider struct {
	credentials CredentialSource
	tokens      *auth.TokenIssuer
	google      GoogleTokenVerifier
	logger      *zap.Logger

	mu        sync.Mutex
	state     backend.AuthState
	observers map[int64]func(backend.AuthState)
	nextID    int64
}

// NewProvider constructs a Provider and validates its dependencies.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Credentials == nil {
		return nil, errMissingCredentialSource
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		credentials: cfg.Credentials,
		tokens:      cfg.Tokens,
		google:      cfg.Google,
		logger:      logger,
		observers:   make(map[int64]func(backend.AuthState)),
	}, nil
}

// ObserveAuthChanges registers an observer. The current state is delivered
// before this call returns, then every subsequent transition until cancel.
func (p *Provider) ObserveAuthChanges(observer func(backend.AuthState)) (cancel func()) {
	p.mu.Lock()
	p.nextID++
	observerID := p.nextID
	p.observers[observerID] = observer
	current := p.state
	p.mu.Unlock()

	observer(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, observerID)
			p.mu.Unlock()
		})
	}
}

// SignInWithPassword verifies the credential pair and, on success,
// publishes a signed-in state.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) error {
	_, err := p.PasswordSignIn(ctx, email, password)
	return err
}

// PasswordSignIn is SignInWithPassword returning the identity subject,
// for callers that go on to issue a session token.
func (p *Provider) PasswordSignIn(ctx context.Context, email, password string) (string, error) {
	account, found, err := p.credentials.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("identity: credential lookup: %w", err)
	}
	if !found || account.Password == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	p.publish(backend.AuthState{UserID: account.ID, SignedIn: true})
	return account.ID, nil
}

// SignInWithGoogle verifies the ID token and, on success, publishes a
// signed-in state.
func (p *Provider) SignInWithGoogle(ctx context.Context, idToken string) error {
	_, err := p.GoogleSignIn(ctx, idToken)
	return err
}

// GoogleSignIn is SignInWithGoogle returning the identity subject. When no
// local account matches the token's email, the Google subject itself is
// published; downstream session mirroring then observes an identity
// without a backing record and treats it as unauthenticated.
func (p *Provider) GoogleSignIn(ctx context.Context, idToken string) (string, error) {
	if p.google == nil {
		return "", ErrFederatedUnavailable
	}
	claims, err := p.google.Verify(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("identity: google verification: %w", err)
	}

	subject := claims.Subject
	if claims.Email != "" {
		account, found, err := p.credentials.GetUserByEmail(ctx, normalizeEmail(claims.Email))
		if err != nil {
			return "", fmt.Errorf("identity: account lookup: %w", err)
		}
		if found {
			subject = account.ID
		} else {
			p.logger.Warn("google identity has no backing account",
				zap.String("subject", claims.Subject),
				zap.String("email", claims.Email))
		}
	}

	p.publish(backend.AuthState{UserID: subject, SignedIn: true})
	return subject, nil
}

// SignOut clears the active session and publishes a signed-out state.
func (p *Provider) SignOut(_ context.Context) error {
	p.publish(backend.AuthState{})
	return nil
}

// IssueSessionToken mints a bearer token for the provided subject.
func (p *Provider) IssueSessionToken(subject string) (string, int64, error) {
	return p.tokens.IssueSessionToken(subject)
}

// ValidateSessionToken checks a bearer token and returns its subject.
func (p *Provider) ValidateSessionToken(token string) (string, error) {
	return p.tokens.ValidateToken(token)
}

func (p *Provider) publish(state backend.AuthState) {
	p.mu.Lock()
	p.state = state
	observers := make([]func(backend.AuthState), 0, len(p.observers))
	for _, observer := range p.observers {
		observers = append(observers, observer)
	}
	p.mu.Unlock()

	for _, observer := range observers {
		observer(state)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
