// Package live serves the websocket that keeps a browser's views current.
// Each connection is one view session with its own feed subscriptions.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/domain"
	apiError "hosa-study-board/internal/errors"
	"hosa-study-board/internal/feed"
	"hosa-study-board/internal/mutator"
	"hosa-study-board/internal/projector"
	"hosa-study-board/internal/view"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Sessions are authorized by token, not by origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var validate = validator.New()

// FilterMessage is what a client sends to re-filter a records view.
type FilterMessage struct {
	View   string `json:"view" validate:"required,oneof=resources notes"`
	Search string `json:"search" validate:"max=200"`
	Tags   string `json:"tags" validate:"max=200"`
}

type errorMessage struct {
	Error string `json:"error"`
}

type Handler struct {
	store    docstore.Store
	notifier docstore.Notifier
	members  []string
}

func NewHandler(store docstore.Store, notifier docstore.Notifier, members []string) *Handler {
	return &Handler{store: store, notifier: notifier, members: members}
}

var allViews = []string{view.Points, view.Todos, view.Resources, view.Notes}

// parseViews reads the comma separated views parameter; empty means all.
func parseViews(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return allViews, nil
	}
	var names []string
	seen := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case view.Points, view.Todos, view.Resources, view.Notes:
		default:
			return nil, apiError.BadRequest("Unknown view: "+name, nil)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// Serve upgrades the request and streams view updates until the client leaves.
func (h *Handler) Serve(c *gin.Context) {
	names, err := parseViews(c.Query("views"))
	if err != nil {
		c.Error(err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered the request
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(conn, log.With().Str("uid", c.GetString("uid")).Logger())
	feeds := feed.NewManager(h.store, h.notifier)

	go s.writePump()

	ctx := c.Request.Context()
	for _, name := range names {
		if name == view.Points {
			h.ensurePoints(ctx, s.logger)
		}
		v := h.newView(name, s.emit)
		s.views[name] = v
		if err := feeds.Subscribe(ctx, name, v.Target(), view.Handler(v)); err != nil {
			s.logger.Error().Err(err).Str("view", name).Msg("subscribe failed")
			s.closeWith(websocket.CloseInternalServerErr, "subscription failed")
			break
		}
	}

	s.readPump()

	feeds.Close()
	s.shutdown()
}

// ensurePoints creates the tally on first sight, as any read of it would.
// On failure the view still renders the seed.
func (h *Handler) ensurePoints(ctx context.Context, logger zerolog.Logger) {
	seed := func() domain.PointsTally { return domain.NewTally(h.members) }
	ref := docstore.Doc(domain.CollectionMeta, domain.DocPoints)
	if _, err := mutator.Ensure(ctx, h.store, ref, seed); err != nil {
		logger.Error().Err(err).Msg("seeding points failed")
	}
}

func (h *Handler) newView(name string, out view.Emit) view.View {
	switch name {
	case view.Points:
		return view.NewPointsView(h.members, out)
	case view.Todos:
		return view.NewTodoView(out)
	case view.Resources:
		return view.NewLibraryView(domain.CollectionResources, out)
	default:
		return view.NewLibraryView(domain.CollectionNotes, out)
	}
}

type session struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	views  map[string]view.View
	logger zerolog.Logger
}

func newSession(conn *websocket.Conn, logger zerolog.Logger) *session {
	return &session{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		views:  make(map[string]view.View),
		logger: logger,
	}
}

func (s *session) shutdown() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// emit queues an update, waiting while the writer catches up. Once the
// session is closed updates are discarded.
func (s *session) emit(u view.Update) {
	s.push(u)
}

func (s *session) push(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding message")
		return
	}
	select {
	case s.send <- msg:
	case <-s.closed:
	}
}

func (s *session) closeWith(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	s.shutdown()
}

func (s *session) readPump() {
	defer s.shutdown()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		if err := s.handle(data); err != nil {
			reason := err.Error()
			var apiErr *apiError.APIError
			if errors.As(err, &apiErr) {
				reason = apiErr.Message
			}
			s.push(errorMessage{Error: reason})
		}
	}
}

func (s *session) handle(data []byte) error {
	var msg FilterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return apiError.BadRequest("Malformed message", err)
	}
	if err := validate.Struct(msg); err != nil {
		return apiError.NewValidationError(err).WithMessage("Invalid filter")
	}

	lib, ok := s.views[msg.View].(*view.LibraryView)
	if !ok {
		return apiError.BadRequest("View not subscribed: "+msg.View, nil)
	}
	return lib.SetFilter(msg.Search, projector.ParseTags(msg.Tags))
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.shutdown()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}
