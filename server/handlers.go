package server

import (
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/Luismorlan/familyfeed/feed"
	"github.com/Luismorlan/familyfeed/model"
	"github.com/Luismorlan/familyfeed/server/middlewares"
	"github.com/Luismorlan/familyfeed/utils"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

// Server holds what the http handlers need. Every handler but Ping and
// NotifyFamily acts on the session of the authenticated user.
type Server struct {
	Sessions *SessionRegistry
	// Publisher announces changes reported by the store of record.
	Publisher feed.ChangePublisher
	// Location interprets taken_at values without a zone.
	Location *time.Location

	upgrader websocket.Upgrader
}

func NewServer(sessions *SessionRegistry, publisher feed.ChangePublisher, location *time.Location) *Server {
	if location == nil {
		location = time.UTC
	}
	return &Server{
		Sessions:  sessions,
		Publisher: publisher,
		Location:  location,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are already checked by the cors middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// AddRoutes registers the feed api. auth resolves the acting user, webhook
// guards the notification endpoint.
func AddRoutes(router gin.IRouter, s *Server, auth gin.HandlerFunc, webhook gin.HandlerFunc) {
	router.GET("/ping", s.Ping)

	user := router.Group("/", auth)
	user.POST("/families/:id/load", s.LoadFamily)
	user.GET("/families/:id/stream", s.Stream)
	user.POST("/feed/refresh", s.RefreshFeed)
	user.GET("/feed", s.GetFeed)
	user.POST("/posts", s.CreatePost)
	user.POST("/posts/:id/favorite", s.ToggleFavorite)

	router.POST("/families/:id/notify", webhook, s.NotifyFamily)
}

// statusOf maps the feed error kinds to http.
func statusOf(err error) (int, int) {
	switch {
	case errors.Is(err, feed.ErrUnauthenticated):
		return http.StatusUnauthorized, utils.ErrorUnauthenticated
	case errors.Is(err, feed.ErrNotFound):
		return http.StatusNotFound, utils.ErrorNotFound
	case errors.Is(err, feed.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, utils.ErrorPreconditionFailed
	case errors.Is(err, feed.ErrBackendFailure):
		return http.StatusBadGateway, utils.ErrorBackendFailure
	}
	return http.StatusInternalServerError, utils.ErrorInternal
}

func abortWithError(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		Logger.Log.Errorf("%s %s failed: %s", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code": code,
		"msg":  err.Error(),
	})
}

func abortBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code": utils.ErrorBadRequest,
		"msg":  err.Error(),
	})
}

func (s *Server) session(c *gin.Context) *Session {
	return s.Sessions.Get(middlewares.UserId(c))
}

func renderState(c *gin.Context, status int, state feed.State) {
	dto, err := toFeedStateDTO(state)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(status, dto)
}

func (s *Server) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// LoadFamily selects a family and starts hydrating it. The response is the
// loading state, observe /feed or the stream for the result.
func (s *Server) LoadFamily(c *gin.Context) {
	sess := s.session(c)
	if err := sess.Sync.Load(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	renderState(c, http.StatusAccepted, sess.Sync.State())
}

func (s *Server) RefreshFeed(c *gin.Context) {
	sess := s.session(c)
	if err := sess.Sync.Refresh(); err != nil {
		abortWithError(c, err)
		return
	}
	renderState(c, http.StatusAccepted, sess.Sync.State())
}

func (s *Server) GetFeed(c *gin.Context) {
	renderState(c, http.StatusOK, s.session(c).Sync.State())
}

func (s *Server) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	draft := feed.PostDraft{
		MediaUrl:  req.MediaUrl,
		MediaType: model.MediaType(req.MediaType),
		Caption:   req.Caption,
	}
	if req.TakenAt != "" {
		takenAt, err := dateparse.ParseIn(req.TakenAt, s.Location)
		if err != nil {
			abortBadRequest(c, errors.Wrap(err, "taken_at"))
			return
		}
		draft.TakenAt = takenAt
	}

	id, err := s.session(c).Gateway.CreatePost(c.Request.Context(), draft, req.FamilyIds)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) ToggleFavorite(c *gin.Context) {
	postID := c.Param("id")
	isFavorite, err := s.session(c).Gateway.ToggleFavorite(c.Request.Context(), postID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": postID, "is_favorite": isFavorite})
}

// NotifyFamily lets the store of record announce a change of one family.
func (s *Server) NotifyFamily(c *gin.Context) {
	familyID := c.Param("id")
	if err := s.Publisher.NotifyFamilyChanged(c.Request.Context(), familyID); err != nil {
		abortWithError(c, errors.Wrap(feed.ErrBackendFailure, err.Error()))
		return
	}
	c.Status(http.StatusAccepted)
}
