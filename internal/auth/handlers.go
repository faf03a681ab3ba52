package auth

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	apperrors "github.com/clipshare/backend/internal/errors"
	"github.com/clipshare/backend/internal/logger"
	"github.com/clipshare/backend/internal/media"
	"github.com/clipshare/backend/internal/metrics"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	// maxUploadMemory bounds the in-memory portion of multipart parsing;
	// larger parts spill to disk.
	maxUploadMemory = 32 << 20
)

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type Handlers struct {
	service *Service
	media   media.Store
	log     *logger.Logger
}

func NewHandlers(service *Service, mediaStore media.Store) *Handlers {
	return &Handlers{
		service: service,
		media:   mediaStore,
		log:     logger.Default().WithComponent("auth"),
	}
}

// Register handles multipart registration: text fields plus a required
// avatar file and an optional cover image.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return apperrors.BadRequest("invalid multipart form").WithCause(err)
	}

	in := RegisterInput{
		FullName: r.FormValue("fullName"),
		Email:    r.FormValue("email"),
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
	}

	// Fields and uniqueness are checked before any upload work so a bad
	// request never leaves an orphaned object in storage.
	if err := h.service.ValidateRegistration(r.Context(), in); err != nil {
		return err
	}

	avatarFile, avatarHeader, err := r.FormFile("avatar")
	if err != nil {
		return apperrors.BadRequest("avatar file is required")
	}
	defer avatarFile.Close()

	avatarPath, avatarType, err := spoolTempFile(avatarFile, avatarHeader)
	if err != nil {
		return apperrors.InternalError("failed to buffer avatar upload").WithCause(err)
	}

	avatar, err := h.media.Upload(r.Context(), avatarPath, avatarType)
	if err != nil || avatar == nil {
		return apperrors.InternalError("avatar upload did not yield a reference").WithCause(err)
	}
	in.AvatarURL = avatar.URL

	// Cover image is optional; an upload failure means "no asset".
	if coverFile, coverHeader, err := r.FormFile("coverImage"); err == nil {
		defer coverFile.Close()
		if coverPath, coverType, err := spoolTempFile(coverFile, coverHeader); err == nil {
			if cover, err := h.media.Upload(r.Context(), coverPath, coverType); err == nil && cover != nil {
				in.CoverImageURL = cover.URL
			} else {
				h.log.Warn(r.Context(), "cover image upload failed", map[string]any{
					"username": in.Username,
				})
			}
		}
	}

	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		return err
	}
	metrics.Default().IncCounter("user_registrations_total")

	requestID := apperrors.GetRequestID(r.Context())
	apperrors.WriteSuccess(w, requestID, http.StatusCreated, user, "user registered successfully")
	return nil
}

// Login verifies credentials and delivers the token pair both in the body
// and as secure HTTP-only cookies.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body").WithCause(err)
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}
	metrics.Default().IncCounter("user_logins_total")

	h.setAuthCookies(w, result.AccessToken, result.RefreshToken)

	requestID := apperrors.GetRequestID(r.Context())
	apperrors.WriteSuccess(w, requestID, http.StatusOK, result, "user logged in successfully")
	return nil
}

// Refresh rotates the session. The incoming token is taken from the cookie
// when present, otherwise from the JSON body.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) error {
	var incoming string
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		incoming = c.Value
	}
	if incoming == "" && r.Body != nil {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			incoming = req.RefreshToken
		}
	}

	pair, err := h.service.Refresh(r.Context(), incoming)
	if err != nil {
		return err
	}
	metrics.Default().IncCounter("token_refreshes_total")

	h.setAuthCookies(w, pair.AccessToken, pair.RefreshToken)

	requestID := apperrors.GetRequestID(r.Context())
	apperrors.WriteSuccess(w, requestID, http.StatusOK, pair, "access token refreshed")
	return nil
}

// Logout clears the stored refresh token and expires the auth cookies.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) error {
	userCtx := GetUserFromContext(r.Context())
	if userCtx == nil {
		return apperrors.Unauthorized("not authenticated")
	}

	if err := h.service.Logout(r.Context(), userCtx.UserID); err != nil {
		return err
	}

	h.clearAuthCookies(w)

	requestID := apperrors.GetRequestID(r.Context())
	apperrors.WriteSuccess(w, requestID, http.StatusOK, nil, "user logged out successfully")
	return nil
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	userCtx := GetUserFromContext(r.Context())
	if userCtx == nil {
		return apperrors.Unauthorized("not authenticated")
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body").WithCause(err)
	}

	if err := h.service.ChangePassword(r.Context(), userCtx.UserID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	requestID := apperrors.GetRequestID(r.Context())
	apperrors.WriteSuccess(w, requestID, http.StatusOK, nil, "password changed successfully")
	return nil
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) error {
	userCtx := GetUserFromContext(r.Context())
	if userCtx == nil {
		return apperrors.Unauthorized("not authenticated")
	}

	user, err := h.service.CurrentUser(r.Context(), userCtx.UserID)
	if err != nil {
		return err
	}

	requestID := apperrors.GetRequestID(r.Context())
	apperrors.WriteSuccess(w, requestID, http.StatusOK, user, "current user fetched successfully")
	return nil
}

func (h *Handlers) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.service.Tokens().AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.service.Tokens().RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handlers) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// spoolTempFile writes an uploaded part to a local temp file so the upload
// collaborator can consume a path. The collaborator owns removal.
func spoolTempFile(src multipart.File, header *multipart.FileHeader) (string, string, error) {
	ext := filepath.Ext(header.Filename)
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return "", "", err
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", "", err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return tmp.Name(), contentType, nil
}
