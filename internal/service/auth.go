// Package service holds the business logic that sits between the HTTP
// handlers and the repositories.
//
//	AuthHandler (HTTP) → AuthService (identity rules) → UserRepository / ProfileRepository
//	                   ↘ TokenService (JWT) ↘ PasswordService (bcrypt) ↘ GitHubProvider (OAuth)
//
// AuthService is also the session provider the profile controller talks
// to: it validates sessions, updates identity metadata and pushes auth
// changes to subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/auth"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/repository"
)

// subscriberBuffer bounds each auth-change channel. A subscriber that
// falls this far behind loses events rather than stalling sign-ins.
const subscriberBuffer = 16

// IdentityStore is the slice of the store AuthService needs.
type IdentityStore interface {
	repository.UserRepository
	repository.ProfileRepository
}

// GitHubAuthenticator is implemented by *auth.GitHubProvider.
type GitHubAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthService issues, validates and revokes sessions.
type AuthService struct {
	store     IdentityStore
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	github    GitHubAuthenticator // nil when GitHub sign-in is not configured
	logger    *slog.Logger

	mu      sync.Mutex
	revoked map[string]time.Time // jti → token expiry
	subs    map[int]chan model.AuthEvent
	nextSub int
}

// NewAuthService wires the provider. github may be nil.
func NewAuthService(
	store IdentityStore,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	github GitHubAuthenticator,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		tokens:    tokens,
		passwords: passwords,
		github:    github,
		logger:    logger,
		revoked:   make(map[string]time.Time),
		subs:      make(map[int]chan model.AuthEvent),
	}
}

var errBadCredentials = apperror.Unauthorized("invalid email or password")

// SignUp creates a password account with an empty profile and signs it in.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if err := s.passwords.CheckStrength(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "an account with this email already exists", Field: "email"}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}
	if err := s.ensureProfile(ctx, user.ID); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	return s.startSession(user)
}

// SignInWithPassword never says which of email or password was wrong.
func (s *AuthService) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	// GitHub-only accounts have no password.
	if user.PasswordHash == "" {
		return nil, errBadCredentials
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, errBadCredentials
	}
	return s.startSession(user)
}

// GitHubAuthURL returns where to send the browser for GitHub sign-in.
func (s *AuthService) GitHubAuthURL(state string) (string, error) {
	if s.github == nil {
		return "", apperror.Unavailable("GitHub sign-in is not configured")
	}
	return s.github.AuthURL(state), nil
}

// SignInWithGitHub completes the OAuth callback. First sign-in creates
// the account and its profile; later ones refresh login, email and avatar.
func (s *AuthService) SignInWithGitHub(ctx context.Context, code string) (*model.Session, error) {
	if s.github == nil {
		return nil, apperror.Unavailable("GitHub sign-in is not configured")
	}
	gh, err := s.github.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/auth: github exchange: %w", err)
	}

	ghID := gh.ID
	user := &model.User{
		GitHubID:  &ghID,
		Login:     gh.Login,
		Email:     gh.Email,
		AvatarURL: gh.AvatarURL,
	}
	if err := s.store.UpsertGitHubUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", gh.ID, err)
	}
	if err := s.ensureProfile(ctx, user.ID); err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)
	return s.startSession(user)
}

// IssueSession mints a session for an existing user without credentials.
// Only the admin CLI calls it.
func (s *AuthService) IssueSession(ctx context.Context, userID string) (*model.Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	token, claims, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token: %w", err)
	}
	return &model.Session{AccessToken: token, ExpiresAt: claims.ExpiresAt.Time, User: *user}, nil
}

// VerifyToken implements auth.Verifier.
func (s *AuthService) VerifyToken(_ context.Context, token string) (string, error) {
	claims, err := s.verify(token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// GetSession resolves an access token to the current session. A token for
// a user that no longer exists is treated as no session.
func (s *AuthService) GetSession(ctx context.Context, token string) (*model.Session, error) {
	claims, err := s.verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("session user no longer exists")
		}
		return nil, fmt.Errorf("service/auth: fetching session user: %w", err)
	}
	return &model.Session{AccessToken: token, ExpiresAt: claims.ExpiresAt.Time, User: *user}, nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID must not be empty")
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

// UpdateUser changes identity metadata and announces USER_UPDATED.
func (s *AuthService) UpdateUser(ctx context.Context, userID string, attrs model.UserAttributes) (*model.User, error) {
	if attrs.AvatarURL != nil {
		if err := s.store.UpdateUserAvatar(ctx, userID, *attrs.AvatarURL); err != nil {
			return nil, fmt.Errorf("service/auth: updating avatar metadata: %w", err)
		}
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.publish(model.AuthEvent{Kind: model.EventUserUpdated, UserID: user.ID, User: user})
	return user, nil
}

// SignOut revokes the token until it would have expired anyway. Signing
// out with an already invalid token is a no-op.
func (s *AuthService) SignOut(_ context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}

	now := time.Now()
	s.mu.Lock()
	for jti, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, jti)
		}
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	s.mu.Unlock()

	s.logger.Info("user signed out", slog.String("userID", claims.UserID()))
	s.publish(model.AuthEvent{Kind: model.EventSignedOut, UserID: claims.UserID()})
	return nil
}

// OnAuthStateChange subscribes to auth changes. The returned func
// unsubscribes and closes the channel; calling it twice is safe.
func (s *AuthService) OnAuthStateChange() (<-chan model.AuthEvent, func()) {
	ch := make(chan model.AuthEvent, subscriberBuffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks. Sends happen under the lock so an unsubscribe
// cannot close a channel mid-send.
func (s *AuthService) publish(ev model.AuthEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("auth event dropped, subscriber is full",
				slog.String("kind", string(ev.Kind)),
				slog.String("userID", ev.UserID),
			)
		}
	}
}

func (s *AuthService) verify(token string) (*auth.Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return nil, apperror.Unauthorized("session has been signed out")
	}
	return claims, nil
}

func (s *AuthService) startSession(user *model.User) (*model.Session, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}
	sess := &model.Session{AccessToken: token, ExpiresAt: claims.ExpiresAt.Time, User: *user}
	u := *user
	s.publish(model.AuthEvent{Kind: model.EventSignedIn, UserID: user.ID, User: &u})
	return sess, nil
}

// ensureProfile creates the empty profile row. An existing one is fine.
func (s *AuthService) ensureProfile(ctx context.Context, userID string) error {
	err := s.store.CreateProfile(ctx, &model.Profile{ID: userID})
	if err != nil && !errors.Is(err, apperror.ErrConflict) {
		return fmt.Errorf("service/auth: creating profile for %s: %w", userID, err)
	}
	return nil
}
