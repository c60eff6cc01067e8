// Package server exposes the application over HTTP: auth endpoints,
// catalog queries, the SSE snapshot stream, uploads, deletes and download
// accounting. Handlers read the cells and call the gateway; they never
// mutate session or catalog state directly.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/snehith2024/Wallify/internal/access"
	"github.com/snehith2024/Wallify/internal/app"
	"github.com/snehith2024/Wallify/internal/backend"
	"github.com/snehith2024/Wallify/internal/gateway"
)

const subjectContextKey = "wallify_subject"

var (
	errMissingApp           = errors.New("application dependency required")
	errMissingSessionTokens = errors.New("session token manager dependency required")
	errMissingRecordStore   = errors.New("record store dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokenManager issues and validates bearer tokens for signed-in
// identities.
type SessionTokenManager interface {
	PasswordSignIn(ctx context.Context, email, password string) (string, error)
	GoogleSignIn(ctx context.Context, idToken string) (string, error)
	IssueSessionToken(subject string) (string, int64, error)
	ValidateSessionToken(token string) (string, error)
}

// Dependencies bundles everything the HTTP layer needs.
type Dependencies struct {
	App     *app.App
	Tokens  SessionTokenManager
	Records backend.RecordStore
	Logger  *zap.Logger

	// FilesDir, when set, is served under /files for the local blob
	// store driver.
	FilesDir string
}

// NewHTTPHandler builds the gin router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.App == nil {
		return nil, errMissingApp
	}
	if deps.Tokens == nil {
		return nil, errMissingSessionTokens
	}
	if deps.Records == nil {
		return nil, errMissingRecordStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		app:     deps.App,
		tokens:  deps.Tokens,
		records: deps.Records,
		logger:  logger,
	}

	router.POST("/auth/login", handler.handlePasswordLogin)
	router.POST("/auth/google", handler.handleGoogleLogin)

	router.GET("/page", handler.handleGetPage)
	router.POST("/page", handler.handleNavigate)

	router.GET("/wallpapers", handler.requireConnection, handler.handleListWallpapers)
	router.GET("/wallpapers/stream", handler.requireConnection, handler.handleStreamWallpapers)
	router.POST("/wallpapers/:id/download", handler.requireConnection, handler.handleDownload)

	if deps.FilesDir != "" {
		router.Static("/files", deps.FilesDir)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.GET("/me", handler.handleMe)
	protected.POST("/wallpapers", handler.requireConnection, handler.handleUpload)
	protected.DELETE("/wallpapers/:id", handler.requireConnection, handler.handleDelete)

	return router, nil
}

type httpHandler struct {
	app     *app.App
	tokens  SessionTokenManager
	records backend.RecordStore
	logger  *zap.Logger
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleLoginRequestPayload struct {
	IDToken string `json:"id_token"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handlePasswordLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	subject, err := h.tokens.PasswordSignIn(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.logger.Warn("password sign-in failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	h.respondWithToken(c, subject)
}

func (h *httpHandler) handleGoogleLogin(c *gin.Context) {
	var request googleLoginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	subject, err := h.tokens.GoogleSignIn(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("google sign-in failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	h.respondWithToken(c, subject)
}

func (h *httpHandler) respondWithToken(c *gin.Context, subject string) {
	token, expiresIn, err := h.tokens.IssueSessionToken(subject)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := h.app.Gateway.SignOut(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type userPayload struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, ok := h.bearerUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userPayload{ID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin})
}

type pagePayload struct {
	Page string `json:"page"`
}

type navigateRequestPayload struct {
	Target string `json:"target"`
}

func (h *httpHandler) handleGetPage(c *gin.Context) {
	c.JSON(http.StatusOK, pagePayload{Page: string(h.app.Page())})
}

func (h *httpHandler) handleNavigate(c *gin.Context) {
	var request navigateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	target := app.Page(request.Target)
	if !app.ContentPage(target) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
		return
	}
	c.JSON(http.StatusOK, pagePayload{Page: string(h.app.Navigate(target))})
}

type wallpaperPayload struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ImageURL      string   `json:"image_url"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
	UploaderID    string   `json:"uploader_id"`
	DownloadCount int64    `json:"download_count"`
	CreatedAt     int64    `json:"created_at_s"`
}

func toWallpaperPayloads(wallpapers []backend.Wallpaper) []wallpaperPayload {
	payloads := make([]wallpaperPayload, 0, len(wallpapers))
	for _, wallpaper := range wallpapers {
		tags := wallpaper.Tags
		if tags == nil {
			tags = []string{}
		}
		payloads = append(payloads, wallpaperPayload{
			ID:            wallpaper.ID,
			Name:          wallpaper.Name,
			ImageURL:      wallpaper.ImageURL,
			Category:      wallpaper.Category,
			Tags:          tags,
			UploaderID:    wallpaper.UploaderID,
			DownloadCount: wallpaper.DownloadCount,
			CreatedAt:     wallpaper.CreatedAt.Unix(),
		})
	}
	return payloads
}

func (h *httpHandler) handleListWallpapers(c *gin.Context) {
	filter := app.Filter{
		Category: c.Query("category"),
		Search:   c.Query("q"),
	}
	snapshot := filter.Apply(h.app.Catalog.Snapshot())
	c.JSON(http.StatusOK, gin.H{"wallpapers": toWallpaperPayloads(snapshot)})
}

func (h *httpHandler) handleStreamWallpapers(c *gin.Context) {
	stream, cancel, err := h.records.SubscribeWallpapers(c.Request.Context())
	if err != nil {
		h.logger.Error("snapshot stream subscription failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "subscription_failed"})
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(io.Writer) bool {
		select {
		case snapshot, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent("snapshot", gin.H{"wallpapers": toWallpaperPayloads(snapshot)})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	user, ok := h.bearerUser(c)
	if !ok {
		return
	}

	name := c.PostForm("name")
	category := c.PostForm("category")
	tags := splitTags(c.PostForm("tags"))

	if category != "" && !app.ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_category"})
		return
	}

	request := gateway.UploadRequest{
		Name:     name,
		Category: category,
		Tags:     tags,
	}
	fileHeader, err := c.FormFile("image")
	if err == nil {
		file, openErr := fileHeader.Open()
		if openErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_file"})
			return
		}
		defer file.Close()
		request.FileName = fileHeader.Filename
		request.File = file
		request.Size = fileHeader.Size
		request.ContentType = fileHeader.Header.Get("Content-Type")
	}

	recordID, err := h.app.Gateway.Upload(c.Request.Context(), user, request)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrIncompleteUpload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "incomplete_upload"})
		case errors.Is(err, gateway.ErrNotSignedIn):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": recordID})
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	user, ok := h.bearerUser(c)
	if !ok {
		return
	}

	wallpaperID := c.Param("id")
	wallpaper, found, err := h.records.GetWallpaper(c.Request.Context(), wallpaperID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if found && !access.CanMutate(user, true, wallpaper) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.app.Gateway.Delete(c.Request.Context(), wallpaperID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDownload(c *gin.Context) {
	wallpaperID := c.Param("id")
	wallpaper, found, err := h.records.GetWallpaper(c.Request.Context(), wallpaperID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	// The retrieval URL is returned regardless of whether the counter
	// update lands; the gateway logs increment failures and moves on.
	h.app.Gateway.Download(c.Request.Context(), wallpaperID)
	c.JSON(http.StatusOK, gin.H{"image_url": wallpaper.ImageURL})
}

// requireConnection turns the terminal connection-error page state into a
// 503 for catalog-facing routes.
func (h *httpHandler) requireConnection(c *gin.Context) {
	if h.app.Page() == app.PageConnectionError {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "connection_error"})
		return
	}
	c.Next()
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateSessionToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

// bearerUser resolves the authenticated subject to its backing record.
func (h *httpHandler) bearerUser(c *gin.Context) (backend.User, bool) {
	subject := c.GetString(subjectContextKey)
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return backend.User{}, false
	}
	user, found, err := h.records.GetUser(c.Request.Context(), subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return backend.User{}, false
	}
	if !found {
		h.logger.Warn("no backing record for authenticated subject", zap.String("subject", subject))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return backend.User{}, false
	}
	return user, true
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
