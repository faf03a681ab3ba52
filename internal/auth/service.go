// Package auth implements the account session lifecycle: registration,
// credential login, refresh-token rotation, and logout. Session state is a
// single refresh token stored on the user record; a new login or refresh
// overwrites it, which is what revokes the previous session. The tradeoff is
// one active session per user in exchange for O(1) revocation without a
// blocklist.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipshare/backend/internal/db"
	apperrors "github.com/clipshare/backend/internal/errors"
)

const profileCacheTTL = 5 * time.Minute

// UserStore is the credential store consumed by the Service.
type UserStore interface {
	Create(ctx context.Context, user *db.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetByUsernameOrEmail(ctx context.Context, username, email string) (*db.User, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// ProfileCache caches public user views. A nil cache disables caching.
type ProfileCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PublicUser is the caller-facing projection of a user record. It never
// carries the password hash or the stored refresh token.
type PublicUser struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RegisterInput carries the validated registration fields. Avatar and cover
// URLs are resolved by the upload collaborator before the service is called.
type RegisterInput struct {
	FullName      string
	Email         string
	Username      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// TokenPair bundles a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is returned on successful login.
type LoginResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         *PublicUser `json:"user"`
}

type Service struct {
	users      UserStore
	tokens     *TokenManager
	cache      ProfileCache
	bcryptCost int
}

func NewService(users UserStore, tokens *TokenManager, cache ProfileCache, bcryptCost int) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		cache:      cache,
		bcryptCost: bcryptCost,
	}
}

// Tokens exposes the token manager for middleware wiring.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// HashPassword derives a salted bcrypt hash of the plaintext.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
func (s *Service) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateRegistration runs the required-field and uniqueness checks without
// side effects. Callers that do upload work before Register use it to fail
// before anything lands in object storage.
func (s *Service) ValidateRegistration(ctx context.Context, in RegisterInput) error {
	fullName := strings.TrimSpace(in.FullName)
	username := db.NormalizeUsername(in.Username)
	email := db.NormalizeEmail(in.Email)

	if fullName == "" || email == "" || username == "" || strings.TrimSpace(in.Password) == "" {
		return apperrors.BadRequest("all fields are required")
	}

	if _, err := s.users.GetByUsernameOrEmail(ctx, username, email); err == nil {
		return apperrors.UserExists()
	} else if !errors.Is(err, db.ErrUserNotFound) {
		return apperrors.DatabaseError("failed to check existing users").WithCause(err)
	}

	return nil
}

// Register creates a user record after validation and uniqueness checks, then
// re-fetches it through the public projection as a creation-integrity check.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*PublicUser, error) {
	if err := s.ValidateRegistration(ctx, in); err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(in.FullName)
	username := db.NormalizeUsername(in.Username)
	email := db.NormalizeEmail(in.Email)

	if in.AvatarURL == "" {
		return nil, apperrors.InternalError("avatar upload did not yield a reference")
	}

	passwordHash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, apperrors.InternalError("failed to hash password").WithCause(err)
	}

	now := time.Now()
	user := &db.User{
		ID:            uuid.New(),
		Username:      username,
		Email:         email,
		FullName:      fullName,
		PasswordHash:  passwordHash,
		AvatarURL:     in.AvatarURL,
		CoverImageURL: in.CoverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrUsernameExists) || errors.Is(err, db.ErrEmailExists) {
			return nil, apperrors.UserExists()
		}
		return nil, apperrors.DatabaseError("failed to create user").WithCause(err)
	}

	created, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, apperrors.InternalError("something went wrong while registering the user").WithCause(err)
	}

	return PublicView(created), nil
}

// Login verifies credentials, mints a token pair, and persists the refresh
// token on the user record, overwriting any prior session.
func (s *Service) Login(ctx context.Context, username, email, password string) (*LoginResult, error) {
	username = db.NormalizeUsername(username)
	email = db.NormalizeEmail(email)

	if username == "" && email == "" {
		return nil, apperrors.BadRequest("username or email is required")
	}

	user, err := s.users.GetByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, apperrors.DatabaseError("failed to look up user").WithCause(err)
	}

	if !s.VerifyPassword(password, user.PasswordHash) {
		return nil, apperrors.InvalidCredentials()
	}

	pair, err := s.issueAndPersist(ctx, user)
	if err != nil {
		return nil, err
	}

	s.invalidateProfile(ctx, user.ID)

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         PublicView(user),
	}, nil
}

// Refresh rotates the session. The incoming token must verify and match the
// copy stored on the user record; after rotation the old token is permanently
// unusable even before its expiry.
func (s *Service) Refresh(ctx context.Context, incoming string) (*TokenPair, error) {
	if incoming == "" {
		return nil, apperrors.Unauthorized("unauthorized request")
	}

	userID, err := s.tokens.VerifyRefreshToken(incoming)
	if err != nil {
		return nil, apperrors.InvalidToken("invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, apperrors.InvalidToken("invalid refresh token")
		}
		return nil, apperrors.DatabaseError("failed to look up user").WithCause(err)
	}

	if user.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(incoming)) != 1 {
		return nil, apperrors.InvalidToken("refresh token is expired or used")
	}

	return s.issueAndPersist(ctx, user)
}

// Logout clears the stored refresh token. Any previously issued refresh token
// then fails the stored-value check.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return apperrors.DatabaseError("failed to clear session").WithCause(err)
	}
	s.invalidateProfile(ctx, userID)
	return nil
}

// ChangePassword re-hashes only when the password actually changes; the
// stored hash is untouched on any other update path.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperrors.BadRequest("new password is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return apperrors.NotFound("user")
		}
		return apperrors.DatabaseError("failed to look up user").WithCause(err)
	}

	if !s.VerifyPassword(oldPassword, user.PasswordHash) {
		return apperrors.Unauthorized("invalid old password")
	}

	newHash, err := s.HashPassword(newPassword)
	if err != nil {
		return apperrors.InternalError("failed to hash password").WithCause(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return apperrors.DatabaseError("failed to update password").WithCause(err)
	}

	s.invalidateProfile(ctx, userID)
	return nil
}

// CurrentUser returns the public view of a user, served from the profile
// cache when warm.
func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (*PublicUser, error) {
	key := profileCacheKey(userID)

	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			var cached PublicUser
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, apperrors.DatabaseError("failed to look up user").WithCause(err)
	}

	view := PublicView(user)

	if s.cache != nil {
		if raw, err := json.Marshal(view); err == nil {
			_ = s.cache.Set(ctx, key, string(raw), profileCacheTTL)
		}
	}

	return view, nil
}

// PublicView strips the password hash and refresh token. Every path that
// returns a user to a response boundary goes through this projection.
func PublicView(user *db.User) *PublicUser {
	return &PublicUser{
		ID:         user.ID.String(),
		Username:   user.Username,
		Email:      user.Email,
		FullName:   user.FullName,
		Avatar:     user.AvatarURL,
		CoverImage: user.CoverImageURL,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

// issueAndPersist mints a token pair and stores the refresh token. Rotation
// is not transactional with issuance: a crash between the two can strand a
// client on an unmatched token, an accepted gap of this design.
func (s *Service) issueAndPersist(ctx context.Context, user *db.User) (*TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, apperrors.InternalError("failed to issue access token").WithCause(err)
	}

	refreshToken, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, apperrors.InternalError("failed to issue refresh token").WithCause(err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, &refreshToken); err != nil {
		return nil, apperrors.DatabaseError("failed to persist session").WithCause(err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *Service) invalidateProfile(ctx context.Context, userID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, profileCacheKey(userID))
	}
}

func profileCacheKey(userID uuid.UUID) string {
	return "profile:" + userID.String()
}
