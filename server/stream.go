package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

const streamWriteTimeout = 10 * time.Second

// Stream pushes every published state of the family over a websocket,
// starting with the current one. The family is loaded unless already
// selected. The stream ends when the session switches to another family.
func (s *Server) Stream(c *gin.Context) {
	sess := s.session(c)
	familyID := c.Param("id")
	if sess.Sync.FamilyID() != familyID {
		if err := sess.Sync.Load(familyID); err != nil {
			abortWithError(c, err)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied to the client.
		Logger.Log.Warnf("fail to upgrade stream of family %s: %s", familyID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Clients send nothing, reading only notices the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for state := range sess.Sync.Watch(ctx) {
		if state.FamilyID != familyID {
			closeStream(conn, "family switched to "+state.FamilyID)
			return
		}
		dto, err := toFeedStateDTO(state)
		if err != nil {
			Logger.Log.Errorf("fail to render state of family %s: %s", familyID, err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(dto); err != nil {
			return
		}
	}
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
