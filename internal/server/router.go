package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/archivelab/folio/internal/editlock"
	"github.com/archivelab/folio/internal/identity"
	"github.com/archivelab/folio/internal/posts"
	"github.com/archivelab/folio/internal/textdiff"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	identityContextKey = "folio_identity"
	requestIDHeader    = "X-Request-ID"

	// excerptRadius bounds the unchanged context shown around each change in
	// history responses.
	excerptRadius = 50
)

var (
	errMissingLockCoordinator = errors.New("lock coordinator dependency required")
	errMissingPostsService    = errors.New("posts service dependency required")
	errMissingResolver        = errors.New("identity resolver dependency required")
)

// Dependencies wires the HTTP layer to the edit engine.
type Dependencies struct {
	Locks    *editlock.Coordinator
	Posts    *posts.Service
	Identity identity.Resolver
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin router exposing edit sessions, commits and
// revision history.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Locks == nil {
		return nil, errMissingLockCoordinator
	}
	if deps.Posts == nil {
		return nil, errMissingPostsService
	}
	if deps.Identity == nil {
		return nil, errMissingResolver
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Folio-User"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		locks:    deps.Locks,
		posts:    deps.Posts,
		identity: deps.Identity,
		logger:   logger,
	}

	router.GET("/posts/:postId/history", handler.handleHistory)

	editing := router.Group("/")
	editing.Use(handler.resolveIdentity)
	editing.POST("/posts/:postId/edit-session", handler.handleRequestSession)
	editing.POST("/posts/:postId/heartbeat", handler.handleHeartbeat)
	editing.POST("/posts/:postId/edit-session/release", handler.handleRelease)
	editing.POST("/posts/:postId/commit", handler.handleCommit)

	return router, nil
}

type httpHandler struct {
	locks    *editlock.Coordinator
	posts    *posts.Service
	identity identity.Resolver
	logger   *zap.Logger
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			if value, err := uuid.NewV7(); err == nil {
				requestID = value.String()
			}
		}
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()

		logger.Info("request handled",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}

func (h *httpHandler) resolveIdentity(c *gin.Context) {
	name, err := h.identity.Resolve(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, name.String())
	c.Next()
}

func (h *httpHandler) callerName(c *gin.Context) (identity.Name, bool) {
	name, err := identity.NewName(c.GetString(identityContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return name, true
}

func parsePostID(c *gin.Context) (int64, bool) {
	postID, err := strconv.ParseInt(c.Param("postId"), 10, 64)
	if err != nil || postID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return 0, false
	}
	return postID, true
}

type sessionResponsePayload struct {
	Granted     bool   `json:"granted"`
	EditingUser string `json:"editing_user,omitempty"`
}

func (h *httpHandler) handleRequestSession(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}
	requester, ok := h.callerName(c)
	if !ok {
		return
	}

	outcome, err := h.locks.RequestSession(c.Request.Context(), postID, requester)
	if err != nil {
		h.logger.Error("failed to request edit session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_failed"})
		return
	}
	if !outcome.Granted {
		c.JSON(http.StatusConflict, sessionResponsePayload{
			Granted:     false,
			EditingUser: outcome.HolderName,
		})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{Granted: true})
}

func (h *httpHandler) handleHeartbeat(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}
	holder, ok := h.callerName(c)
	if !ok {
		return
	}

	err := h.locks.Heartbeat(c.Request.Context(), postID, holder)
	if errors.Is(err, editlock.ErrLockLost) {
		c.JSON(http.StatusConflict, gin.H{"error": "lock_lost"})
		return
	}
	if err != nil {
		h.logger.Error("failed to renew edit session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat_failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRelease(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}
	holder, ok := h.callerName(c)
	if !ok {
		return
	}

	if err := h.locks.Release(c.Request.Context(), postID, holder); err != nil {
		h.logger.Error("failed to release edit session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "release_failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

type commitRequestPayload struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type commitResponsePayload struct {
	PostID         int64 `json:"post_id"`
	RevisionNumber int64 `json:"revision_number"`
}

func (h *httpHandler) handleCommit(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}
	editor, ok := h.callerName(c)
	if !ok {
		return
	}

	var request commitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.posts.CommitEdit(c.Request.Context(), postID, editor, request.Title, request.Content, request.Tags)
	switch {
	case errors.Is(err, posts.ErrLockNotHeld):
		c.JSON(http.StatusConflict, gin.H{"error": "lock_not_held"})
		return
	case errors.Is(err, posts.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		return
	case errors.Is(err, posts.ErrUnknownTag):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown_tag"})
		return
	case err != nil:
		h.logger.Error("failed to commit edit", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "commit_failed"})
		return
	}

	c.JSON(http.StatusOK, commitResponsePayload{
		PostID:         result.PostID,
		RevisionNumber: result.RevisionNumber,
	})
}

type diffSegmentPayload struct {
	Op      string `json:"op"`
	Text    string `json:"text"`
	Excerpt string `json:"excerpt,omitempty"`
}

type revisionViewPayload struct {
	RevisionNumber int64                `json:"revision_number"`
	EditedAt       string               `json:"edited_at"`
	EditorName     string               `json:"editor_name"`
	TitleDiff      []diffSegmentPayload `json:"title_diff"`
	ContentDiff    []diffSegmentPayload `json:"content_diff"`
}

func (h *httpHandler) handleHistory(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	views, err := h.posts.ListHistory(c.Request.Context(), postID)
	if err != nil {
		h.logger.Error("failed to load edit history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_failed"})
		return
	}

	response := make([]revisionViewPayload, 0, len(views))
	for _, view := range views {
		response = append(response, revisionViewPayload{
			RevisionNumber: view.RevisionNumber,
			EditedAt:       view.EditedAt.Format(time.RFC3339),
			EditorName:     view.EditorName,
			TitleDiff:      toDiffPayload(view.TitleDiff),
			ContentDiff:    toDiffPayload(view.ContentDiff),
		})
	}

	c.JSON(http.StatusOK, gin.H{"revisions": response})
}

func toDiffPayload(segments []textdiff.Segment) []diffSegmentPayload {
	payload := make([]diffSegmentPayload, 0, len(segments))
	for i, segment := range segments {
		entry := diffSegmentPayload{
			Op:   segment.Op.String(),
			Text: segment.Text,
		}
		if segment.Op != textdiff.Equal {
			entry.Excerpt = textdiff.Excerpt(segments, i, excerptRadius)
		}
		payload = append(payload, entry)
	}
	return payload
}
