package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	engine "github.com/jason-s-yu/influence/engine"
	"github.com/jason-s-yu/influence/service/internal/timeouts"
	"github.com/sirupsen/logrus"
)

// feedBuffer is the per-socket commit buffer. Every message is a full
// snapshot, so a dropped commit is repaired by the next one.
const feedBuffer = 16

// Snapshot is the only server message: the viewer's projection after a
// commit.
type Snapshot struct {
	Type    string      `json:"type"`
	Version int64       `json:"version"`
	Op      string      `json:"op,omitempty"`
	Game    engine.Game `json:"game"`
}

// socket streams viewer projections of one game until either side closes.
// Clients send input over the HTTP routes; anything they write is ignored.
func (s *Server) socket(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	viewer := r.URL.Query().Get("viewer")
	initial, err := s.svc.View(r.Context(), gameID, viewer)
	if err != nil {
		s.writeError(w, err)
		return
	}

	feed, unsubscribe := s.svc.Subscribe(feedBuffer)
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.WithError(err).WithField("game", gameID).Debug("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	log := s.log.WithFields(logrus.Fields{"game": gameID, "viewer": viewer})
	log.Debug("socket opened")

	ctx := conn.CloseRead(r.Context())
	if err := writeSnapshot(ctx, conn, Snapshot{Type: "state", Game: initial}); err != nil {
		return
	}

	ping := time.NewTicker(timeouts.SocketIdle / 2)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("socket closed")
			return
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, timeouts.SocketWrite)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.WithError(err).Debug("socket ping failed")
				return
			}
		case c, ok := <-feed:
			if !ok {
				return
			}
			if c.Game.ID != gameID {
				continue
			}
			snap := Snapshot{Type: "state", Version: c.Version, Op: c.Op, Game: c.Game.ViewFor(viewer)}
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				log.WithError(err).Debug("socket write failed")
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.SocketWrite)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
