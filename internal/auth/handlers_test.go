package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/clipshare/backend/internal/errors"
	"github.com/clipshare/backend/internal/media"
)

type fakeMediaStore struct {
	uploads int
	fail    bool
	failExt string // fail only uploads with this file extension
}

func (f *fakeMediaStore) Upload(ctx context.Context, localPath, contentType string) (*media.UploadResult, error) {
	defer os.Remove(localPath)
	if f.fail || (f.failExt != "" && strings.HasSuffix(localPath, f.failExt)) {
		return nil, errors.New("storage down")
	}
	f.uploads++
	key := "images/fake-" + contentType
	return &media.UploadResult{Key: key, URL: "/api/v1/media/" + key}, nil
}

func newTestHandlers(t *testing.T) (*Handlers, *fakeUserStore, *fakeMediaStore) {
	t.Helper()
	store := newFakeUserStore()
	tokens := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	svc := NewService(store, tokens, nil, bcrypt.MinCost)
	mediaStore := &fakeMediaStore{}
	return NewHandlers(svc, mediaStore), store, mediaStore
}

type formFile struct {
	field, name, content string
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(f.content)); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func registerFields() map[string]string {
	return map[string]string{
		"fullName": "Alice Example",
		"email":    "alice@example.com",
		"username": "alice",
		"password": "Secret123!",
	}
}

func doRegister(t *testing.T, h *Handlers, fields map[string]string, files ...formFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	apperrors.HandleFunc(h.Register)(rec, req)
	return rec
}

func TestRegisterHandler(t *testing.T) {
	h, store, mediaStore := newTestHandlers(t)

	rec := doRegister(t, h, registerFields(),
		formFile{"avatar", "avatar.png", "png-bytes"},
		formFile{"coverImage", "cover.jpg", "jpg-bytes"},
	)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp apperrors.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Success || resp.StatusCode != http.StatusCreated {
		t.Errorf("unexpected envelope: %+v", resp)
	}

	data, _ := resp.Data.(map[string]any)
	if data["username"] != "alice" {
		t.Errorf("expected username in data, got %v", resp.Data)
	}
	for _, forbidden := range []string{"password", "passwordHash", "refreshToken"} {
		if _, ok := data[forbidden]; ok {
			t.Errorf("sensitive field %q leaked in response", forbidden)
		}
	}

	if mediaStore.uploads != 2 {
		t.Errorf("expected avatar and cover uploads, got %d", mediaStore.uploads)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 stored record, got %d", store.count())
	}
}

func TestRegisterHandlerMissingAvatar(t *testing.T) {
	h, store, _ := newTestHandlers(t)

	rec := doRegister(t, h, registerFields())

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp apperrors.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Success {
		t.Error("failure envelope must have success=false")
	}
	if resp.Message != "avatar file is required" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if store.count() != 0 {
		t.Error("no record may be created without an avatar")
	}
}

func TestRegisterHandlerStorageFailure(t *testing.T) {
	h, store, mediaStore := newTestHandlers(t)
	mediaStore.fail = true

	rec := doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if store.count() != 0 {
		t.Error("no record may be created when the avatar upload fails")
	}
}

func TestRegisterHandlerCoverFailureIsNotFatal(t *testing.T) {
	h, store, mediaStore := newTestHandlers(t)
	mediaStore.failExt = ".jpg"

	rec := doRegister(t, h, registerFields(),
		formFile{"avatar", "avatar.png", "png-bytes"},
		formFile{"coverImage", "cover.jpg", "jpg-bytes"},
	)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 despite cover upload failure, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.count() != 1 {
		t.Errorf("expected 1 stored record, got %d", store.count())
	}

	var resp apperrors.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	data, _ := resp.Data.(map[string]any)
	if cover, _ := data["coverImage"].(string); cover != "" {
		t.Errorf("failed cover upload must leave coverImage empty, got %q", cover)
	}
	if avatar, _ := data["avatar"].(string); avatar == "" {
		t.Error("avatar reference must still be set")
	}
}

func TestRegisterHandlerValidatesBeforeUpload(t *testing.T) {
	h, store, mediaStore := newTestHandlers(t)

	fields := registerFields()
	fields["fullName"] = "   "

	rec := doRegister(t, h, fields, formFile{"avatar", "avatar.png", "png-bytes"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if mediaStore.uploads != 0 {
		t.Errorf("invalid registration must not upload anything, got %d uploads", mediaStore.uploads)
	}
	if store.count() != 0 {
		t.Error("invalid registration must not create a record")
	}

	// A broken media store must not mask the validation error as a 500.
	mediaStore.fail = true
	rec = doRegister(t, h, fields, formFile{"avatar", "avatar.png", "png-bytes"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 regardless of storage state, got %d", rec.Code)
	}
}

func TestRegisterHandlerDuplicateSkipsUpload(t *testing.T) {
	h, _, mediaStore := newTestHandlers(t)

	if rec := doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"}); rec.Code != http.StatusCreated {
		t.Fatalf("first registration failed: %d", rec.Code)
	}
	uploadsAfterFirst := mediaStore.uploads

	rec := doRegister(t, h, registerFields(), formFile{"avatar", "avatar2.png", "png-bytes"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
	if mediaStore.uploads != uploadsAfterFirst {
		t.Errorf("duplicate registration must not upload, got %d uploads", mediaStore.uploads)
	}
}

func doLogin(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	apperrors.HandleFunc(h.Login)(rec, req)
	return rec
}

func TestLoginHandlerSetsCookies(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})

	rec := doLogin(t, h, `{"username":"alice","password":"Secret123!"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	byName := make(map[string]*http.Cookie)
	for _, c := range cookies {
		byName[c.Name] = c
	}
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		c, ok := byName[name]
		if !ok {
			t.Fatalf("cookie %s not set", name)
		}
		if c.Value == "" {
			t.Errorf("cookie %s is empty", name)
		}
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
			t.Errorf("cookie %s missing security attributes", name)
		}
	}

	// Tokens are also delivered in the body.
	var resp apperrors.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	data, _ := resp.Data.(map[string]any)
	access, _ := data["accessToken"].(string)
	refresh, _ := data["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Error("token pair must be present in the response body")
	}
}

func TestLoginHandlerBadCredentials(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})

	rec := doLogin(t, h, `{"username":"alice","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var resp apperrors.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Message != "invalid user credentials" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if resp.Errors == nil {
		t.Error("errors must serialize as an empty array, not null")
	}
}

func TestRefreshHandlerFromCookie(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})
	login := doLogin(t, h, `{"username":"alice","password":"Secret123!"}`)

	var refreshCookie *http.Cookie
	for _, c := range login.Result().Cookies() {
		if c.Name == refreshTokenCookie {
			refreshCookie = c
		}
	}
	if refreshCookie == nil {
		t.Fatal("login did not set a refresh cookie")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(refreshCookie)
	rec := httptest.NewRecorder()
	apperrors.HandleFunc(h.Refresh)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp apperrors.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	data, _ := resp.Data.(map[string]any)
	if data["refreshToken"] == refreshCookie.Value {
		t.Error("refresh must rotate the token")
	}
}

func TestRefreshHandlerFromBody(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})
	login := doLogin(t, h, `{"username":"alice","password":"Secret123!"}`)

	var resp apperrors.Response
	if err := json.Unmarshal(login.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	data, _ := resp.Data.(map[string]any)
	refreshToken, _ := data["refreshToken"].(string)

	body, _ := json.Marshal(RefreshRequest{RefreshToken: refreshToken})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	apperrors.HandleFunc(h.Refresh)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshHandlerWithoutToken(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	apperrors.HandleFunc(h.Refresh)(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogoutHandlerClearsCookies(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})
	doLogin(t, h, `{"username":"alice","password":"Secret123!"}`)

	stored, _ := store.GetByUsernameOrEmail(context.Background(), "alice", "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	ctx := context.WithValue(req.Context(), UserContextKey, &UserContext{
		UserID: stored.ID, Email: stored.Email, Username: stored.Username,
	})
	rec := httptest.NewRecorder()
	apperrors.HandleFunc(h.Logout)(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge != -1 {
			t.Errorf("cookie %s should be expired, MaxAge=%d", c.Name, c.MaxAge)
		}
	}

	after, _ := store.GetByID(context.Background(), stored.ID)
	if after.RefreshToken != nil {
		t.Error("logout must clear the stored refresh token")
	}
}

func TestAuthMiddleware(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})
	login := doLogin(t, h, `{"username":"alice","password":"Secret123!"}`)

	var resp apperrors.Response
	if err := json.Unmarshal(login.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	data, _ := resp.Data.(map[string]any)
	accessToken, _ := data["accessToken"].(string)

	mw := Middleware(h.service.Tokens())
	var seen *UserContext
	protected := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	// Bearer header.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with bearer token, got %d", rec.Code)
	}
	if seen == nil || seen.Username != "alice" {
		t.Error("user context not populated from claims")
	}

	// Cookie fallback.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: accessToken})
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 with cookie token, got %d", rec.Code)
	}

	// No token.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	// Garbage token.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestChangePasswordHandler(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})
	stored, _ := store.GetByUsernameOrEmail(context.Background(), "alice", "")

	body := `{"oldPassword":"Secret123!","newPassword":"NewSecret456!"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/change-password", strings.NewReader(body))
	ctx := context.WithValue(req.Context(), UserContextKey, &UserContext{UserID: stored.ID})
	rec := httptest.NewRecorder()
	apperrors.HandleFunc(h.ChangePassword)(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := doLogin(t, h, `{"username":"alice","password":"NewSecret456!"}`); rec.Code != http.StatusOK {
		t.Errorf("login with new password failed: %d", rec.Code)
	}
}

func TestMeHandler(t *testing.T) {
	h, store, _ := newTestHandlers(t)
	doRegister(t, h, registerFields(), formFile{"avatar", "avatar.png", "png-bytes"})
	stored, _ := store.GetByUsernameOrEmail(context.Background(), "alice", "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	ctx := context.WithValue(req.Context(), UserContextKey, &UserContext{UserID: stored.ID})
	rec := httptest.NewRecorder()
	apperrors.HandleFunc(h.Me)(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp apperrors.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	data, _ := resp.Data.(map[string]any)
	if data["email"] != "alice@example.com" {
		t.Errorf("unexpected profile payload: %v", resp.Data)
	}
}
