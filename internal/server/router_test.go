package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/archivelab/folio/internal/editlock"
	"github.com/archivelab/folio/internal/identity"
	"github.com/archivelab/folio/internal/markup"
	"github.com/archivelab/folio/internal/posts"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const identityHeader = "X-Folio-User"

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestHandler(t *testing.T) (http.Handler, *gorm.DB, *testClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&posts.Post{}, &posts.Tag{}, &posts.PostTag{}, &posts.Revision{}, &editlock.EditLock{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	coordinator, err := editlock.NewCoordinator(editlock.CoordinatorConfig{
		Database: db,
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	service, err := posts.NewService(posts.ServiceConfig{
		Database: db,
		Renderer: markup.NewGoldmarkRenderer(),
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to construct posts service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Locks:    coordinator,
		Posts:    service,
		Identity: identity.HeaderResolver{Header: identityHeader},
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return handler, db, clock
}

func seedPost(t *testing.T, db *gorm.DB, title, content string) int64 {
	t.Helper()
	post := posts.Post{Title: title, Content: content}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("failed to seed post: %v", err)
	}
	return post.PostID
}

func doRequest(handler http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		request.Header.Set(identityHeader, user)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestEditSessionGrantAndDeny(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	postID := seedPost(testContext, db, "Alpha", "<p>old</p>")
	path := fmt.Sprintf("/posts/%d/edit-session", postID)

	granted := doRequest(handler, http.MethodPost, path, "alice", "")
	if granted.Code != http.StatusOK {
		testContext.Fatalf("expected 200 for first requester, got %d", granted.Code)
	}

	denied := doRequest(handler, http.MethodPost, path, "bob", "")
	if denied.Code != http.StatusConflict {
		testContext.Fatalf("expected 409 for second requester, got %d", denied.Code)
	}
	var payload sessionResponsePayload
	if err := json.Unmarshal(denied.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
	if payload.Granted || payload.EditingUser != "alice" {
		testContext.Fatalf("denial must name the holder: %#v", payload)
	}
}

func TestEditSessionRequiresIdentity(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	postID := seedPost(testContext, db, "Alpha", "<p>old</p>")

	response := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/edit-session", postID), "", "")
	if response.Code != http.StatusUnauthorized {
		testContext.Fatalf("expected 401 without identity header, got %d", response.Code)
	}
}

func TestHeartbeatReportsLockLost(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	postID := seedPost(testContext, db, "Alpha", "<p>old</p>")

	response := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/heartbeat", postID), "alice", "")
	if response.Code != http.StatusConflict {
		testContext.Fatalf("expected 409 for heartbeat without lock, got %d", response.Code)
	}
	if !strings.Contains(response.Body.String(), "lock_lost") {
		testContext.Fatalf("unexpected body %s", response.Body.String())
	}
}

func TestCommitFlowProducesRevisionAndHistory(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	postID := seedPost(testContext, db, "Alpha", "<p>old body</p>\n")

	if response := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/edit-session", postID), "alice", ""); response.Code != http.StatusOK {
		testContext.Fatalf("session request failed with %d", response.Code)
	}

	commitBody := `{"title":"Alpa","content":"new body","tags":[]}`
	commit := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/commit", postID), "alice", commitBody)
	if commit.Code != http.StatusOK {
		testContext.Fatalf("commit failed with %d: %s", commit.Code, commit.Body.String())
	}
	var commitPayload commitResponsePayload
	if err := json.Unmarshal(commit.Body.Bytes(), &commitPayload); err != nil {
		testContext.Fatalf("failed to decode commit response: %v", err)
	}
	if commitPayload.PostID != postID || commitPayload.RevisionNumber != 1 {
		testContext.Fatalf("unexpected commit payload %#v", commitPayload)
	}

	history := doRequest(handler, http.MethodGet, fmt.Sprintf("/posts/%d/history", postID), "", "")
	if history.Code != http.StatusOK {
		testContext.Fatalf("history failed with %d", history.Code)
	}
	var historyPayload struct {
		Revisions []revisionViewPayload `json:"revisions"`
	}
	if err := json.Unmarshal(history.Body.Bytes(), &historyPayload); err != nil {
		testContext.Fatalf("failed to decode history response: %v", err)
	}
	if len(historyPayload.Revisions) != 1 {
		testContext.Fatalf("expected one revision, got %d", len(historyPayload.Revisions))
	}
	view := historyPayload.Revisions[0]
	if view.RevisionNumber != 1 || view.EditorName != "alice" {
		testContext.Fatalf("unexpected revision view %#v", view)
	}

	var sawDeletion bool
	for _, segment := range view.TitleDiff {
		if segment.Op == "deleted" {
			sawDeletion = true
			if segment.Text != "h" {
				testContext.Fatalf("expected deletion of %q, got %q", "h", segment.Text)
			}
			if segment.Excerpt == "" {
				testContext.Fatalf("changed segments must carry an excerpt")
			}
		}
	}
	if !sawDeletion {
		testContext.Fatalf("title diff must contain the deleted character: %#v", view.TitleDiff)
	}
}

func TestCommitWithoutLockReturnsConflict(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	postID := seedPost(testContext, db, "Alpha", "<p>old</p>")

	commitBody := `{"title":"Alpha II","content":"body","tags":[]}`
	response := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/commit", postID), "alice", commitBody)
	if response.Code != http.StatusConflict {
		testContext.Fatalf("expected 409, got %d", response.Code)
	}
	if !strings.Contains(response.Body.String(), "lock_not_held") {
		testContext.Fatalf("unexpected body %s", response.Body.String())
	}
}

func TestCommitUnknownTagReturnsUnprocessable(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	postID := seedPost(testContext, db, "Alpha", "<p>old</p>")

	if response := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/edit-session", postID), "alice", ""); response.Code != http.StatusOK {
		testContext.Fatalf("session request failed with %d", response.Code)
	}

	commitBody := `{"title":"Alpha II","content":"body","tags":["missing-tag"]}`
	response := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/commit", postID), "alice", commitBody)
	if response.Code != http.StatusUnprocessableEntity {
		testContext.Fatalf("expected 422, got %d", response.Code)
	}
}

func TestStaleSessionTakeoverOverHTTP(testContext *testing.T) {
	handler, db, clock := newTestHandler(testContext)
	postID := seedPost(testContext, db, "Alpha", "<p>old</p>")
	sessionPath := fmt.Sprintf("/posts/%d/edit-session", postID)

	if response := doRequest(handler, http.MethodPost, sessionPath, "alice", ""); response.Code != http.StatusOK {
		testContext.Fatalf("session request failed with %d", response.Code)
	}

	clock.Advance(31 * time.Minute)
	if response := doRequest(handler, http.MethodPost, sessionPath, "bob", ""); response.Code != http.StatusOK {
		testContext.Fatalf("stale lock takeover failed with %d", response.Code)
	}

	heartbeat := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/heartbeat", postID), "alice", "")
	if heartbeat.Code != http.StatusConflict {
		testContext.Fatalf("displaced holder heartbeat: expected 409, got %d", heartbeat.Code)
	}
}

func TestInvalidPostIDRejected(testContext *testing.T) {
	handler, _, _ := newTestHandler(testContext)

	response := doRequest(handler, http.MethodPost, "/posts/not-a-number/edit-session", "alice", "")
	if response.Code != http.StatusBadRequest {
		testContext.Fatalf("expected 400, got %d", response.Code)
	}
}

func TestReleaseIsIdempotentOverHTTP(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	postID := seedPost(testContext, db, "Alpha", "<p>old</p>")
	releasePath := fmt.Sprintf("/posts/%d/edit-session/release", postID)

	if response := doRequest(handler, http.MethodPost, fmt.Sprintf("/posts/%d/edit-session", postID), "alice", ""); response.Code != http.StatusOK {
		testContext.Fatalf("session request failed with %d", response.Code)
	}
	if response := doRequest(handler, http.MethodPost, releasePath, "alice", ""); response.Code != http.StatusNoContent {
		testContext.Fatalf("release failed with %d", response.Code)
	}
	if response := doRequest(handler, http.MethodPost, releasePath, "alice", ""); response.Code != http.StatusNoContent {
		testContext.Fatalf("repeated release failed with %d", response.Code)
	}
}
