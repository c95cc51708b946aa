package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luismorlan/familyfeed/model"
	"github.com/Luismorlan/familyfeed/notifier"
	"github.com/Luismorlan/familyfeed/server/middlewares"
)

var baseTime = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	backend  *memoryBackend
	hub      *notifier.Hub
	sessions *SessionRegistry
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := newMemoryBackend()
	like := &model.Reaction{Id: "r1", PostID: "p1", UserID: "user_b", Kind: model.ReactionKindLike}
	view := &model.Reaction{Id: "r2", PostID: "p1", UserID: "user_b", Kind: model.ReactionKindSlideshowView, AuthorName: "Bob"}
	b.seed("family_1", &model.Post{
		Id: "p1", Timestamp: baseTime, Author: model.Author{UserId: "user_b", Name: "Bob"},
		MediaUrl: "https://media/p1.jpg", MediaType: model.MediaTypeImage,
		Reactions: []*model.Reaction{like, view},
	})
	b.seed("family_1", &model.Post{Id: "p2", Timestamp: baseTime.Add(time.Hour), MediaType: model.MediaTypeVideo})
	b.seed("family_2", &model.Post{Id: "p3", Timestamp: baseTime})
	b.profiles["user_a"] = &model.UserProfile{Name: "Ada", StreakCount: 1}

	hub := notifier.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	sessions := NewSessionRegistry(ctx, SessionRegistryConfig{DefaultLimit: 30, Location: time.UTC}, b, hub, nil, hub)
	t.Cleanup(func() {
		sessions.Close()
		cancel()
	})

	router := gin.New()
	AddRoutes(router, NewServer(sessions, hub, time.UTC), middlewares.DevUser(), middlewares.WebhookSecret(""))
	return &testEnv{backend: b, hub: hub, sessions: sessions, router: router}
}

func (e *testEnv) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			reader = strings.NewReader(s)
		} else {
			b, _ := json.Marshal(body)
			reader = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set(middlewares.DevUserHeader, user)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) FeedStateDTO {
	t.Helper()
	var state FeedStateDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	return state
}

func (e *testEnv) waitReady(t *testing.T, user, familyID string) FeedStateDTO {
	t.Helper()
	var state FeedStateDTO
	require.Eventually(t, func() bool {
		state = decodeState(t, e.do(http.MethodGet, "/feed", user, nil))
		return state.FamilyID == familyID && state.Status == "ready"
	}, 2*time.Second, 10*time.Millisecond)
	return state
}

func TestPing(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestRequiresUser(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/feed", "", nil).Code)
}

func TestLoadFamilyAndGetFeed(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/families/family_1/load", "user_a", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "family_1", decodeState(t, w).FamilyID)

	state := e.waitReady(t, "user_a", "family_1")
	require.Len(t, state.Posts, 2)
	assert.Equal(t, "p2", state.Posts[0].Id)
	assert.Equal(t, model.MediaTypeVideo, state.Posts[0].MediaType)

	p1 := state.Posts[1]
	assert.Equal(t, "Bob", p1.AuthorName)
	assert.Equal(t, "user_b", p1.AuthorUserId)
	assert.Equal(t, 1, p1.LikesCount)
	assert.False(t, p1.ViewerHasLiked)
	require.Len(t, p1.Slideshow, 1)
	assert.Equal(t, "Bob", p1.Slideshow[0].AuthorName)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)

	// Sessions are per user.
	assert.Equal(t, "idle", decodeState(t, e.do(http.MethodGet, "/feed", "user_b", nil)).Status)
	assert.Equal(t, 2, e.sessions.Count())
}

func TestRefreshBeforeLoad(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/feed/refresh", "user_a", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestCreatePost(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/posts", "user_a", CreatePostRequest{
		MediaUrl:  "https://media/new.jpg",
		MediaType: "image",
		Caption:   "hello",
		TakenAt:   "2026-10-01 18:30",
		FamilyIds: []string{"family_1", "family_2"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Id string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	post, ok := e.backend.post(created.Id)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 1, 18, 30, 0, 0, time.UTC), post.Timestamp.UTC())
	assert.Equal(t, "Ada", post.Author.Name)

	e.do(http.MethodPost, "/families/family_2/load", "user_a", nil)
	state := e.waitReady(t, "user_a", "family_2")
	assert.Len(t, state.Posts, 2)
}

func TestCreatePostRejectsBadInput(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/posts", "user_a", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/posts", "user_a", CreatePostRequest{
		MediaUrl: "https://media/new.jpg", MediaType: "image", TakenAt: "whenever", FamilyIds: []string{"family_1"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/posts", "user_a", CreatePostRequest{
		MediaUrl: "https://media/new.gif", MediaType: "gif", FamilyIds: []string{"family_1"},
	})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	// No profile for this user.
	w = e.do(http.MethodPost, "/posts", "user_z", CreatePostRequest{
		MediaUrl: "https://media/new.jpg", MediaType: "image", FamilyIds: []string{"family_1"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggleFavorite(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodPost, "/families/family_1/load", "user_a", nil)
	e.waitReady(t, "user_a", "family_1")

	w := e.do(http.MethodPost, "/posts/p1/favorite", "user_a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_favorite":true`)
	post, _ := e.backend.post("p1")
	assert.True(t, post.IsFavorite)

	w = e.do(http.MethodPost, "/posts/p3/favorite", "user_a", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestNotifyFamily(t *testing.T) {
	e := newTestEnv(t)
	sub, err := e.hub.Subscribe(context.Background(), "family_1")
	require.NoError(t, err)

	w := e.do(http.MethodPost, "/families/family_1/notify", "", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("no signal")
	}
}

func TestNotificationRehydratesOtherSessions(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodPost, "/families/family_1/load", "user_b", nil)
	before := e.waitReady(t, "user_b", "family_1")

	e.do(http.MethodPost, "/posts", "user_a", CreatePostRequest{
		MediaUrl: "https://media/new.jpg", MediaType: "image", FamilyIds: []string{"family_1"},
	})

	require.Eventually(t, func() bool {
		state := decodeState(t, e.do(http.MethodGet, "/feed", "user_b", nil))
		return state.Status == "ready" && len(state.Posts) == 3 && state.Version > before.Version
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStream(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/families/family_1/stream"
	header := http.Header{}
	header.Set(middlewares.DevUserHeader, "user_a")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var state FeedStateDTO
	for state.Status != "ready" {
		require.NoError(t, conn.ReadJSON(&state))
		assert.Equal(t, "family_1", state.FamilyID)
	}
	assert.Len(t, state.Posts, 2)

	// Switching family ends the stream.
	e.do(http.MethodPost, "/families/family_2/load", "user_a", nil)
	for {
		if err := conn.ReadJSON(&state); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
	}
}
