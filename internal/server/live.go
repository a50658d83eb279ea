package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/saadchadu/phrames"
	"github.com/saadchadu/phrames/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// A data URL carrying the largest accepted photo, plus envelope.
	maxMessageBytes = phrames.MaxPhotoBytes*4/3 + 4<<10

	outboxSize = 8
)

// clientMessage is one editing event sent by the browser.
type clientMessage struct {
	Type          string          `json:"type"`
	X             float64         `json:"x"`
	Y             float64         `json:"y"`
	Touches       []phrames.Point `json:"touches"`
	Delta         float64         `json:"delta"`
	Value         int             `json:"value"`
	Data          string          `json:"data"`
	CanShareFiles bool            `json:"canShareFiles"`
}

// serverMessage is the JSON header of every frame sent to the browser.
// Messages with a payload are followed by one binary frame.
type serverMessage struct {
	Type      string             `json:"type"`
	Transform *phrames.Transform `json:"transform,omitempty"`
	Slider    int                `json:"slider,omitempty"`
	Name      string             `json:"name,omitempty"`
	Title     string             `json:"title,omitempty"`
	URL       string             `json:"url,omitempty"`
	Message   string             `json:"message,omitempty"`
	Size      int                `json:"size,omitempty"`
}

type outbound struct {
	header serverMessage
	body   []byte
}

// session is one live editing connection bound to its own engine.
type session struct {
	conn     *websocket.Conn
	engine   *phrames.Engine
	campaign phrames.CampaignRef
	logger   *slog.Logger

	out     chan outbound
	preview chan outbound
	done    chan struct{}
	stop    sync.Once

	mu       sync.Mutex
	canShare bool
	lastBlob *phrames.Blob
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaign(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, statusFor(err), publicMessage(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	sess := &session{
		conn:     conn,
		campaign: c.Ref(s.baseURL()),
		logger:   s.logger.With("campaign", c.ID, "remote", r.RemoteAddr),
		out:      make(chan outbound, outboxSize),
		preview:  make(chan outbound, 1),
		done:     make(chan struct{}),
	}
	sess.engine = phrames.NewEngine(s.engineOptions(sess.onPreview)...)

	metrics.SessionOpened()
	defer metrics.SessionClosed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sess.writeLoop()
	sess.readLoop(ctx)

	sess.close()
	sess.engine.Close()
}

// checkOrigin accepts same-host origins, or the configured allow list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) > 0 {
		return slices.Contains(allowed, "*") || slices.Contains(allowed, strings.TrimRight(origin, "/"))
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (sess *session) close() {
	sess.stop.Do(func() {
		close(sess.done)
		_ = sess.conn.Close()
	})
}

func (sess *session) readLoop(ctx context.Context) {
	sess.conn.SetReadLimit(maxMessageBytes)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Debug("live session read failed", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			sess.fail(fmt.Errorf("%w: expected a JSON text message", errBadMessage))
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.fail(fmt.Errorf("%w: malformed JSON", errBadMessage))
			continue
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		sess.dispatch(ctx, msg)
	}
}

func (sess *session) dispatch(ctx context.Context, msg clientMessage) {
	e := sess.engine
	switch msg.Type {
	case "photo":
		photo, err := phrames.DecodeDataURL(msg.Data)
		if err != nil {
			sess.fail(err)
			return
		}
		sess.mu.Lock()
		sess.lastBlob = nil
		sess.mu.Unlock()
		e.SetPhoto(photo)
	case "pointerdown":
		e.PointerDown(phrames.Pt(msg.X, msg.Y))
	case "pointermove":
		e.PointerMove(phrames.Pt(msg.X, msg.Y))
	case "pointerup", "pointerleave":
		e.PointerUp()
	case "touchstart":
		e.TouchStart(msg.Touches)
	case "touchmove":
		e.TouchMove(msg.Touches)
	case "touchend":
		e.TouchEnd()
	case "pan":
		e.Pan(msg.X, msg.Y)
	case "zoom":
		e.Zoom(msg.Delta)
	case "zoom-in":
		e.ZoomIn()
	case "zoom-out":
		e.ZoomOut()
	case "slider":
		e.SetSlider(msg.Value)
	case "reset":
		e.Reset()
	case "hello", "capabilities":
		sess.mu.Lock()
		sess.canShare = msg.CanShareFiles
		sess.mu.Unlock()
	case "export":
		sess.export(ctx)
	case "share":
		sess.share(ctx)
	default:
		sess.fail(fmt.Errorf("%w: unknown type %q", errBadMessage, msg.Type))
	}
}

func (sess *session) export(ctx context.Context) {
	start := time.Now()
	target := phrames.DownloadTargetFunc(func(blob *phrames.Blob) error {
		return sess.send(outbound{
			header: serverMessage{Type: "exported", Name: blob.Name, Size: len(blob.Data)},
			body:   blob.Data,
		})
	})
	blob, err := sess.engine.Download(ctx, sess.campaign, target)
	metrics.RecordExport(err == nil, time.Since(start))
	if err != nil {
		sess.fail(err)
		return
	}
	sess.mu.Lock()
	sess.lastBlob = blob
	sess.mu.Unlock()
}

func (sess *session) share(ctx context.Context) {
	sess.mu.Lock()
	blob := sess.lastBlob
	sess.mu.Unlock()

	if blob == nil && sess.engine.Photo() != nil {
		start := time.Now()
		b, err := sess.engine.Export(ctx, sess.campaign.FrameURL)
		metrics.RecordExport(err == nil, time.Since(start))
		if err != nil {
			sess.logger.Debug("share export failed, sharing link", "err", err)
		} else {
			b.Name = phrames.DownloadName(sess.campaign.Name, time.Now())
			blob = b
		}
	}

	if _, err := sess.engine.Share(ctx, blob, sess.campaign, sess); err != nil {
		sess.fail(err)
	}
}

// CanShareFiles implements phrames.Sharer.
func (sess *session) CanShareFiles() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.canShare
}

// ShareFile implements phrames.Sharer.
func (sess *session) ShareFile(_ context.Context, blob *phrames.Blob, title string) error {
	return sess.send(outbound{
		header: serverMessage{Type: "share-file", Name: blob.Name, Title: title, Size: len(blob.Data)},
		body:   blob.Data,
	})
}

// CopyLink implements phrames.Sharer.
func (sess *session) CopyLink(_ context.Context, link string) error {
	return sess.send(outbound{header: serverMessage{Type: "copy-link", URL: link}})
}

// Notify implements phrames.Sharer.
func (sess *session) Notify(message string) {
	_ = sess.send(outbound{header: serverMessage{Type: "notice", Message: message}})
}

// onPreview runs under the engine lock after every repaint.
func (sess *session) onPreview(surface *phrames.Surface, t phrames.Transform) {
	data, err := surface.PNG()
	if err != nil {
		sess.logger.Warn("encode preview failed", "err", err)
		return
	}
	sess.sendPreview(outbound{
		header: serverMessage{Type: "preview", Transform: &t, Slider: phrames.SliderValue(t)},
		body:   data,
	})
	metrics.RecordPreviewFrame()
}

// sendPreview keeps only the newest preview waiting for the writer.
func (sess *session) sendPreview(m outbound) {
	for {
		select {
		case sess.preview <- m:
			return
		case <-sess.done:
			return
		default:
		}
		select {
		case <-sess.preview:
		default:
		}
	}
}

var (
	errSessionClosed = errors.New("server: live session closed")
	errBadMessage    = errors.New("bad message")
)

func (sess *session) send(m outbound) error {
	select {
	case sess.out <- m:
		return nil
	case <-sess.done:
		return errSessionClosed
	}
}

func (sess *session) fail(err error) {
	_ = sess.send(outbound{header: serverMessage{Type: "error", Message: publicMessage(err)}})
}

func (sess *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer sess.close()

	for {
		var m outbound
		select {
		case <-sess.done:
			return
		case m = <-sess.out:
		case m = <-sess.preview:
		case <-ticker.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}
		if err := sess.write(m); err != nil {
			sess.logger.Debug("live session write failed", "err", err)
			return
		}
	}
}

func (sess *session) write(m outbound) error {
	_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sess.conn.WriteJSON(m.header); err != nil {
		return err
	}
	if m.body == nil {
		return nil
	}
	return sess.conn.WriteMessage(websocket.BinaryMessage, m.body)
}
