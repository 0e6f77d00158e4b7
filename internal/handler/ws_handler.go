package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session events to the learner and accepts session
// actions over the same socket.
type WSHandler struct {
	rdb      *redis.Client
	sessions *service.ExamSessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, sessions *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:      rdb,
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/learner/exams/:exam_id/stream
// Upgrades to WebSocket. Ticks, grades and notices of the learner's session
// are pushed as they happen; answers and navigation can be sent back.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID := c.Param("exam_id")
	if !validator.ValidID(examID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.sessions.Get(examID, claims.LearnerID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("learner_id", claims.LearnerID).
		Str("exam_id", examID).
		Logger()

	// The request context carries the localizer for error messages.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.SessionEventChannel(examID, claims.LearnerID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		wsLog.Error().Err(err).Msg("Failed to subscribe to session events")
		conn.WriteError("", string(response.ErrInternal), response.GetMessage(ctx, response.ErrInternal))
		return
	}

	done := make(chan struct{})
	defer close(done)
	go conn.KeepAlive(done)
	go h.forward(conn, pubsub.Channel(), wsLog)

	wsLog.Info().Msg("Learner connected")

	if err := conn.WriteTyped(ws.SnapshotResponse{
		Event:    ws.EventSnapshot,
		Snapshot: localizeSnapshot(ctx, sess.Snapshot()),
	}); err != nil {
		return
	}

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(ctx, conn, examID, claims.LearnerID, msg)
	}

	wsLog.Info().Msg("Learner disconnected")
}

// forward relays published session events until the subscription closes.
func (h *WSHandler) forward(conn *ws.Conn, ch <-chan *redis.Message, log zerolog.Logger) {
	for msg := range ch {
		if err := conn.WriteTyped(ws.SessionEventResponse{
			Event: ws.EventSession,
			Data:  json.RawMessage(msg.Payload),
		}); err != nil {
			log.Debug().Err(err).Msg("Stopped forwarding session events")
			return
		}
	}
}

// dispatch resolves the session for every action, since reopening the exam
// replaces the session this socket started with.
func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, examID, learnerID string, msg json.RawMessage) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		conn.WriteError("", string(response.ErrInvalidPayload), response.GetMessage(ctx, response.ErrInvalidPayload))
		return
	}

	if env.Action == ws.ActionPing {
		conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return
	}

	sess, err := h.sessions.Get(examID, learnerID)
	if err != nil {
		h.writeSessionError(ctx, conn, env.RequestID, err)
		return
	}

	switch env.Action {
	case ws.ActionSnapshot:
		h.ack(ctx, conn, sess, env, nil)

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if err := json.Unmarshal(msg, &req); err != nil || !validator.ValidID(req.QuestionID) {
			conn.WriteError(env.RequestID, string(response.ErrInvalidPayload), response.GetMessage(ctx, response.ErrInvalidPayload))
			return
		}
		if err := sess.Answer(req.QuestionID, req.Value); err != nil {
			h.writeSessionError(ctx, conn, env.RequestID, err)
			return
		}
		h.ack(ctx, conn, sess, env, nil)

	case ws.ActionNext, ws.ActionPrevious:
		move := sess.Next
		if env.Action == ws.ActionPrevious {
			move = sess.Previous
		}
		if _, err := move(); err != nil {
			h.writeSessionError(ctx, conn, env.RequestID, err)
			return
		}
		h.ack(ctx, conn, sess, env, nil)

	case ws.ActionSubmit:
		// Submitting uploads media and waits on the platform; keep reading
		// meanwhile so pongs and other actions are not starved.
		go func() {
			outcome, err := sess.Submit(ctx)
			if err != nil {
				h.writeSessionError(ctx, conn, env.RequestID, err)
				return
			}
			h.ack(ctx, conn, sess, env, outcome)
		}()

	default:
		conn.WriteError(env.RequestID, string(response.ErrInvalidPayload), response.GetMessage(ctx, response.ErrInvalidPayload))
	}
}

func (h *WSHandler) ack(ctx context.Context, conn *ws.Conn, sess *service.ExamSession, env ws.RequestEnvelope, outcome *service.SubmitOutcome) {
	snap := localizeSnapshot(ctx, sess.Snapshot())
	resp := ws.AckResponse{
		Event:     ws.EventAck,
		Action:    env.Action,
		RequestID: env.RequestID,
		Snapshot:  &snap,
	}
	if outcome != nil {
		resp.Grade = outcome.Grade
	}
	conn.WriteTyped(resp)
}

func (h *WSHandler) writeSessionError(ctx context.Context, conn *ws.Conn, requestID string, err error) {
	_, code := sessionError(err)
	h.log.Debug().Err(err).Str("code", string(code)).Msg("Session action rejected")
	conn.WriteError(requestID, string(code), response.GetMessage(ctx, code))
}
