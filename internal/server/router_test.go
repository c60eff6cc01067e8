package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/snehith2024/Wallify/internal/app"
	"github.com/snehith2024/Wallify/internal/backend"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryStore struct {
	mu         sync.Mutex
	users      map[string]backend.User
	wallpapers map[string]backend.Wallpaper
	increments map[string]int64
	nextID     int
	stream     chan []backend.Wallpaper
	subscribed int
	pingErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:      make(map[string]backend.User),
		wallpapers: make(map[string]backend.Wallpaper),
		increments: make(map[string]int64),
		stream:     make(chan []backend.Wallpaper, 4),
	}
}

func (m *memoryStore) Ping(context.Context) error { return m.pingErr }

func (m *memoryStore) GetUser(_ context.Context, id string) (backend.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *memoryStore) GetWallpaper(_ context.Context, id string) (backend.Wallpaper, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallpaper, ok := m.wallpapers[id]
	return wallpaper, ok, nil
}

func (m *memoryStore) CreateWallpaper(_ context.Context, fields backend.WallpaperFields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("w-%04d", m.nextID)
	m.wallpapers[id] = backend.Wallpaper{
		ID:         id,
		Name:       fields.Name,
		ImageURL:   fields.ImageURL,
		Category:   fields.Category,
		Tags:       fields.Tags,
		UploaderID: fields.UploaderID,
		CreatedAt:  time.Now(),
	}
	return id, nil
}

func (m *memoryStore) IncrementDownloadCount(_ context.Context, id string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increments[id] += delta
	return nil
}

func (m *memoryStore) DeleteWallpaper(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wallpapers, id)
	return nil
}

// The first subscriber receives the fixture's shared stream; later ones
// (the SSE handler) get a pre-loaded channel that closes after one event.
func (m *memoryStore) SubscribeWallpapers(context.Context) (<-chan []backend.Wallpaper, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed++
	if m.subscribed == 1 {
		return m.stream, func() {}, nil
	}
	snapshot := make([]backend.Wallpaper, 0, len(m.wallpapers))
	for _, wallpaper := range m.wallpapers {
		snapshot = append(snapshot, wallpaper)
	}
	stream := make(chan []backend.Wallpaper, 1)
	stream <- snapshot
	close(stream)
	return stream, func() {}, nil
}

type memoryBlobs struct{}

func (memoryBlobs) Put(context.Context, string, io.Reader, int64, string) error { return nil }
func (memoryBlobs) PublicURL(_ context.Context, key string) (string, error) {
	return "/files/" + key, nil
}
func (memoryBlobs) Delete(context.Context, string) error { return nil }

type memoryIdentity struct{}

func (memoryIdentity) ObserveAuthChanges(observer func(backend.AuthState)) func() {
	observer(backend.AuthState{})
	return func() {}
}
func (memoryIdentity) SignInWithPassword(context.Context, string, string) error { return nil }
func (memoryIdentity) SignInWithGoogle(context.Context, string) error           { return nil }
func (memoryIdentity) SignOut(context.Context) error                            { return nil }

type fakeTokens struct {
	passwords map[string]string
	subjects  map[string]string
	issueErr  error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{
		passwords: map[string]string{"demo@wallify.app": "hunter2"},
		subjects:  map[string]string{"demo@wallify.app": "u1"},
	}
}

func (f *fakeTokens) PasswordSignIn(_ context.Context, email, password string) (string, error) {
	if f.passwords[email] != password || password == "" {
		return "", errors.New("invalid credentials")
	}
	return f.subjects[email], nil
}

func (f *fakeTokens) GoogleSignIn(_ context.Context, idToken string) (string, error) {
	if idToken != "valid-google-token" {
		return "", errors.New("invalid token")
	}
	return "u1", nil
}

func (f *fakeTokens) IssueSessionToken(subject string) (string, int64, error) {
	if f.issueErr != nil {
		return "", 0, f.issueErr
	}
	return "token-" + subject, 3600, nil
}

func (f *fakeTokens) ValidateSessionToken(token string) (string, error) {
	subject, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return "", errors.New("invalid token")
	}
	return subject, nil
}

type routerFixture struct {
	handler http.Handler
	store   *memoryStore
	app     *app.App
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	store := newMemoryStore()
	store.users["u1"] = backend.User{ID: "u1", Email: "demo@wallify.app"}
	store.users["admin"] = backend.User{ID: "admin", Email: "admin@wallify.app", IsAdmin: true}

	application, err := app.New(app.Config{
		Records:  store,
		Blobs:    memoryBlobs{},
		Identity: memoryIdentity{},
		Clock:    func() time.Time { return time.UnixMilli(1700000000000) },
	})
	if err != nil {
		t.Fatalf("failed to construct app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := application.Start(ctx); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(application.Stop)

	handler, err := NewHTTPHandler(Dependencies{
		App:     application,
		Tokens:  newFakeTokens(),
		Records: store,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return &routerFixture{handler: handler, store: store, app: application}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return request
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's c.Stream
// requires, which httptest.ResponseRecorder does not implement.
type closeNotifyRecorder struct{ *httptest.ResponseRecorder }

func (closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestPasswordLoginIssuesBearerToken(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "demo@wallify.app", "password": "hunter2"}))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["access_token"] != "token-u1" || payload["token_type"] != "Bearer" {
		t.Fatalf("unexpected token payload %#v", payload)
	}
}

func TestPasswordLoginRejectsBadCredentials(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "demo@wallify.app", "password": "wrong"}))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestPasswordLoginRejectsMissingFields(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "demo@wallify.app"}))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestGoogleLoginIssuesBearerToken(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodPost, "/auth/google",
		map[string]string{"id_token": "valid-google-token"}))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodGet, "/me", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestMeReturnsBackingRecord(t *testing.T) {
	fixture := newRouterFixture(t)

	request := jsonRequest(t, http.MethodGet, "/me", nil)
	request.Header.Set("Authorization", "Bearer token-u1")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["id"] != "u1" || payload["email"] != "demo@wallify.app" {
		t.Fatalf("unexpected user payload %#v", payload)
	}
}

func TestMeRejectsSubjectWithoutBackingRecord(t *testing.T) {
	fixture := newRouterFixture(t)

	request := jsonRequest(t, http.MethodGet, "/me", nil)
	request.Header.Set("Authorization", "Bearer token-ghost")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestListWallpapersAppliesCategoryAndSearchFilters(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.store.stream <- []backend.Wallpaper{
		{ID: "a", Name: "Misty Forest", Category: "Nature", Tags: []string{"fog"}},
		{ID: "b", Name: "Nebula", Category: "Space"},
	}
	waitForCatalog(t, fixture, 2)

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodGet, "/wallpapers?category=Nature&q=fog", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	wallpapers := payload["wallpapers"].([]any)
	if len(wallpapers) != 1 {
		t.Fatalf("expected one filtered entry, got %d", len(wallpapers))
	}
	entry := wallpapers[0].(map[string]any)
	if entry["id"] != "a" {
		t.Fatalf("unexpected entry %#v", entry)
	}
}

func waitForCatalog(t *testing.T, fixture *routerFixture, want int) {
	t.Helper()
	deadline := time.After(time.Second)
	for len(fixture.app.Catalog.Snapshot()) != want {
		select {
		case <-deadline:
			t.Fatalf("catalog never reached %d entries", want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field %q: %v", key, err)
		}
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("image", fileName)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := part.Write([]byte("not really a jpeg")); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadCreatesRecordForSignedInUser(t *testing.T) {
	fixture := newRouterFixture(t)

	body, contentType := multipartUpload(t, map[string]string{
		"name":     "Dunes",
		"category": "Nature",
		"tags":     "sand, desert",
	}, "dunes.jpg")

	request := httptest.NewRequest(http.MethodPost, "/wallpapers", body)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer token-u1")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	fixture.store.mu.Lock()
	defer fixture.store.mu.Unlock()
	if len(fixture.store.wallpapers) != 1 {
		t.Fatalf("expected one stored record")
	}
	for _, wallpaper := range fixture.store.wallpapers {
		if wallpaper.UploaderID != "u1" || wallpaper.Category != "Nature" {
			t.Fatalf("unexpected stored record %#v", wallpaper)
		}
		if len(wallpaper.Tags) != 2 || wallpaper.Tags[0] != "sand" || wallpaper.Tags[1] != "desert" {
			t.Fatalf("unexpected tags %#v", wallpaper.Tags)
		}
	}
}

func TestUploadRejectsIncompleteForm(t *testing.T) {
	fixture := newRouterFixture(t)

	body, contentType := multipartUpload(t, map[string]string{"name": "Dunes"}, "")

	request := httptest.NewRequest(http.MethodPost, "/wallpapers", body)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer token-u1")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(fixture.store.wallpapers) != 0 {
		t.Fatalf("incomplete upload must create nothing")
	}
}

func TestUploadRejectsUnknownCategory(t *testing.T) {
	fixture := newRouterFixture(t)

	body, contentType := multipartUpload(t, map[string]string{
		"name":     "Dunes",
		"category": "Velvet",
	}, "dunes.jpg")

	request := httptest.NewRequest(http.MethodPost, "/wallpapers", body)
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Authorization", "Bearer token-u1")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestDeleteForbiddenForNonOwner(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.store.wallpapers["w1"] = backend.Wallpaper{ID: "w1", UploaderID: "someone-else"}

	request := jsonRequest(t, http.MethodDelete, "/wallpapers/w1", nil)
	request.Header.Set("Authorization", "Bearer token-u1")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if _, ok := fixture.store.wallpapers["w1"]; !ok {
		t.Fatalf("record must survive a forbidden delete")
	}
}

func TestDeleteAllowedForOwnerAndAdmin(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.store.wallpapers["w1"] = backend.Wallpaper{ID: "w1", UploaderID: "u1"}
	fixture.store.wallpapers["w2"] = backend.Wallpaper{ID: "w2", UploaderID: "u1"}

	request := jsonRequest(t, http.MethodDelete, "/wallpapers/w1", nil)
	request.Header.Set("Authorization", "Bearer token-u1")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("owner delete: expected 204, got %d", recorder.Code)
	}

	request = jsonRequest(t, http.MethodDelete, "/wallpapers/w2", nil)
	request.Header.Set("Authorization", "Bearer token-admin")
	recorder = httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("admin delete: expected 204, got %d", recorder.Code)
	}
}

func TestDeleteMissingIDIsNoContent(t *testing.T) {
	fixture := newRouterFixture(t)

	request := jsonRequest(t, http.MethodDelete, "/wallpapers/ghost", nil)
	request.Header.Set("Authorization", "Bearer token-u1")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for missing id, got %d", recorder.Code)
	}
}

func TestDownloadReturnsURLAndCountsOnce(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.store.wallpapers["w1"] = backend.Wallpaper{ID: "w1", ImageURL: "/files/wallpapers/x.jpg"}

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodPost, "/wallpapers/w1/download", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["image_url"] != "/files/wallpapers/x.jpg" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if fixture.store.increments["w1"] != 1 {
		t.Fatalf("expected exactly one increment, got %d", fixture.store.increments["w1"])
	}
}

func TestDownloadMissingIDIsNotFound(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodPost, "/wallpapers/ghost/download", nil))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if fixture.store.increments["ghost"] != 0 {
		t.Fatalf("missing id must not be counted")
	}
}

func TestNavigateGuardRedirectsToLogin(t *testing.T) {
	fixture := newRouterFixture(t)
	waitForPageState(t, fixture, string(app.PageHome))

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodPost, "/page",
		map[string]string{"target": "admin"}))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["page"] != "login" {
		t.Fatalf("expected redirect to login, got %#v", payload)
	}
}

func TestNavigateRejectsUnknownPage(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, jsonRequest(t, http.MethodPost, "/page",
		map[string]string{"target": "dashboard"}))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func waitForPageState(t *testing.T, fixture *routerFixture, want string) {
	t.Helper()
	deadline := time.After(time.Second)
	for string(fixture.app.Page()) != want {
		select {
		case <-deadline:
			t.Fatalf("page never reached %q, stuck on %q", want, fixture.app.Page())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStreamEmitsSnapshotImmediately(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.store.wallpapers["w1"] = backend.Wallpaper{ID: "w1", Name: "Dunes", Category: "Nature"}

	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(closeNotifyRecorder{recorder}, jsonRequest(t, http.MethodGet, "/wallpapers/stream", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("unexpected content type %q", got)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "event:snapshot") || !strings.Contains(body, `"id":"w1"`) {
		t.Fatalf("unexpected stream body %q", body)
	}
}

func TestCatalogRoutesReturn503AfterConnectionFailure(t *testing.T) {
	store := newMemoryStore()
	store.pingErr = errors.New("backend unreachable")

	application, err := app.New(app.Config{
		Records:  store,
		Blobs:    memoryBlobs{},
		Identity: memoryIdentity{},
	})
	if err != nil {
		t.Fatalf("failed to construct app: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(application.Stop)

	handler, err := NewHTTPHandler(Dependencies{
		App:     application,
		Tokens:  newFakeTokens(),
		Records: store,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, jsonRequest(t, http.MethodGet, "/wallpapers", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
}
