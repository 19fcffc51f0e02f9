package gateway

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/api"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Streams are authorized by token, not by cookies.
	CheckOrigin: func(*http.Request) bool { return true },
}

type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outboundFrame struct {
	Type    string       `json:"type"`
	Message *api.Message `json:"message,omitempty"`
	Summary *api.Summary `json:"summary,omitempty"`
	Code    string       `json:"code,omitempty"`
	Error   string       `json:"error,omitempty"`
	Cursor  string       `json:"cursor,omitempty"`
	// final closes the connection once the frame is written.
	final bool
}

func errorFrame(err error) outboundFrame {
	res := toErrorResponse(err)
	return outboundFrame{Type: "error", Code: res.Code, Error: res.Error}
}

// connection owns every write to one WebSocket through a buffered
// channel. A client too slow to drain it is disconnected.
type connection struct {
	ws           *websocket.Conn
	send         chan outboundFrame
	closed       chan struct{}
	once         sync.Once
	pingInterval time.Duration
	cancel       context.CancelFunc
}

func newConnection(ws *websocket.Conn, bufferSize int, pingInterval time.Duration, cancel context.CancelFunc) *connection {
	return &connection{
		ws:           ws,
		send:         make(chan outboundFrame, bufferSize),
		closed:       make(chan struct{}),
		pingInterval: pingInterval,
		cancel:       cancel,
	}
}

func (c *connection) start() {
	go c.writeLoop()
}

// enqueue reports false once the connection is closed.
func (c *connection) enqueue(frame outboundFrame) bool {
	select {
	case <-c.closed:
		return false
	case c.send <- frame:
		return true
	default:
		c.close(websocket.CloseTryAgainLater, "send buffer full")
		return false
	}
}

func (c *connection) close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		c.cancel()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.close(websocket.CloseInternalServerErr, "write failed")
				return
			}
			if frame.final {
				c.close(websocket.CloseNormalClosure, frame.Code)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

func (c *connection) write(frame outboundFrame) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(frame)
}

// readLoop hands every inbound frame to onFrame until the peer goes away.
// A peer missing two pings in a row is considered gone.
func (c *connection) readLoop(onFrame func(inboundFrame)) {
	defer c.close(websocket.CloseNormalClosure, "peer closed")
	pongWait := 2 * c.pingInterval
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(errorFrame(fmt.Errorf("%w: invalid frame", errors.ErrInvalidArgument)))
			continue
		}
		onFrame(frame)
	}
}

// streamMessages upgrades to a WebSocket carrying the messages of one
// conversation. The client may send {"type":"message","text":...} frames
// on the same socket.
func (h *Handler) streamMessages(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	key, since, err := conversationParams(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	ctx, cancel, err := h.bindStream(c, identity)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer cancel()
	sub, err := h.chatService.SubscribeMessages(ctx, identity.AccountID, key, since)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer sub.Close()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response.
		return
	}
	conn := newConnection(ws, h.cfg.ConnectionBufferSize, h.cfg.PingInterval, cancel)
	conn.start()
	defer conn.close(websocket.CloseNormalClosure, "stream closed")

	go conn.readLoop(func(frame inboundFrame) {
		if frame.Type != "message" {
			conn.enqueue(errorFrame(fmt.Errorf("%w: unknown frame type %q", errors.ErrInvalidArgument, frame.Type)))
			return
		}
		m, err := h.chatService.Append(ctx, key, identity.AccountID, frame.Text)
		if err != nil {
			conn.enqueue(errorFrame(err))
			return
		}
		ack := api.FromMessage(m)
		conn.enqueue(outboundFrame{Type: "ack", Message: &ack})
	})

	for {
		m, err := sub.Next(ctx)
		if err != nil {
			h.endStream(ctx, conn, err, sub.Cursor().String())
			return
		}
		msg := api.FromMessage(m)
		if !conn.enqueue(outboundFrame{Type: "message", Message: &msg}) {
			return
		}
	}
}

// streamSummaries upgrades to a WebSocket carrying the caller's
// recent-chats rows.
func (h *Handler) streamSummaries(c *gin.Context) {
	identity, ok := identityOf(c)
	if !ok {
		return
	}
	ctx, cancel, err := h.bindStream(c, identity)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer cancel()
	sub, err := h.chatService.SubscribeConversationSummaries(ctx, identity.AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer sub.Close()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := newConnection(ws, h.cfg.ConnectionBufferSize, h.cfg.PingInterval, cancel)
	conn.start()
	defer conn.close(websocket.CloseNormalClosure, "stream closed")

	go conn.readLoop(func(frame inboundFrame) {
		conn.enqueue(errorFrame(fmt.Errorf("%w: summary streams are read-only", errors.ErrInvalidArgument)))
	})

	for {
		summary, err := sub.Next(ctx)
		if err != nil {
			h.endStream(ctx, conn, err, "")
			return
		}
		s := api.FromSummary(summary)
		if !conn.enqueue(outboundFrame{Type: "summary", Summary: &s}) {
			return
		}
	}
}

// bindStream derives the stream context: it ends with the request, when
// the connection closes, or on logout of the session.
func (h *Handler) bindStream(c *gin.Context, identity auth.Identity) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	ctx, release, err := h.authenticator.BindStream(ctx, identity)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, func() {
		release()
		cancel()
	}, nil
}

func (h *Handler) endStream(ctx context.Context, conn *connection, err error, cursor string) {
	if cause := context.Cause(ctx); stderrors.Is(cause, auth.ErrSessionRevoked) {
		err = cause
	} else if ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
		return
	}
	h.log.Warn("WebSocket stream ended", "error", err)
	frame := errorFrame(err)
	frame.Cursor = cursor
	frame.final = true
	if conn.enqueue(frame) {
		<-conn.closed
	}
}
