package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saadchadu/phrames"
	"github.com/saadchadu/phrames/internal/config"
	"github.com/saadchadu/phrames/proxy"
	"github.com/saadchadu/phrames/store"
)

const testBaseURL = "http://phrames.test"

func pngOf(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// framePNG is an opaque green square with a transparent window.
func framePNG(t *testing.T) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if x < 30 || x >= 70 || y < 30 || y >= 70 {
				img.SetNRGBA(x, y, color.NRGBA{G: 255, A: 255})
			}
		}
	}
	return pngOf(t, img)
}

func photoPNG(t *testing.T, w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	return pngOf(t, img)
}

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *store.Memory
	frame string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	frame := framePNG(t)
	frames := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/frame.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(frame)
	}))
	t.Cleanup(frames.Close)

	st := store.NewMemory()
	ctx := context.Background()
	_, err := st.CreateCampaign(ctx, store.NewCampaign{
		Slug:        "summer",
		Name:        "Summer Fest",
		FrameURL:    frames.URL + "/frame.png",
		CreatorID:   "u1",
		CreatorName: "Ada",
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.BaseURL = testBaseURL
	srv, err := New(cfg, Deps{
		Store: st,
		// Test frames are served from loopback.
		Fetcher: proxy.NewFetcher(nil, proxy.Config{AllowPrivateNetworks: true}, nil),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, store: st, frame: frames.URL}
}

func (env *testEnv) addCampaign(t *testing.T, n store.NewCampaign) {
	t.Helper()
	_, err := env.store.CreateCampaign(context.Background(), n)
	require.NoError(t, err)
}

func getJSON(t *testing.T, target string, v any) int {
	t.Helper()
	resp, err := http.Get(target)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, env.ts.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestPageBindings(t *testing.T) {
	env := newTestEnv(t)

	var share pageView
	require.Equal(t, http.StatusOK, getJSON(t, env.ts.URL+"/c/summer", &share))
	assert.Equal(t, "Summer Fest", share.Campaign.Name)
	assert.Equal(t, testBaseURL+"/c/summer", share.ShareURL)
	assert.Nil(t, share.Creator)
	assert.Equal(t, "ws://phrames.test/c/summer/live", share.LiveURL)
	assert.Equal(t, phrames.ExportSize, share.Limits.ExportSize)

	var page pageView
	require.Equal(t, http.StatusOK, getJSON(t, env.ts.URL+"/campaign/summer", &page))
	require.NotNil(t, page.Creator)
	assert.Equal(t, "Ada", page.Creator.Name)
	assert.Empty(t, page.ShareURL)
	assert.Equal(t, "ws://phrames.test/campaign/summer/live", page.LiveURL)
	assert.Equal(t, share.Campaign, page.Campaign)
}

func TestPageUnavailable(t *testing.T) {
	env := newTestEnv(t)
	past := time.Now().Add(-time.Hour)
	env.addCampaign(t, store.NewCampaign{Slug: "old", Name: "Old", FrameURL: env.frame + "/frame.png", ExpiresAt: &past})
	env.addCampaign(t, store.NewCampaign{Slug: "off", Name: "Off", FrameURL: env.frame + "/frame.png", Status: store.StatusInactive})

	tests := []struct {
		path string
		want int
	}{
		{"/c/missing", http.StatusNotFound},
		{"/c/old", http.StatusGone},
		{"/campaign/off", http.StatusNotFound},
		{"/c/old/live", http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, tt.want, getJSON(t, env.ts.URL+tt.path, &body))
			assert.NotEmpty(t, body["error"])
		})
	}

	// The API view still reports inactive campaigns.
	var c map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, env.ts.URL+"/api/campaigns/off", &c))
	assert.Equal(t, store.StatusInactive, c["status"])
}

func postPhoto(t *testing.T, target string, photo []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("photo", "me.png")
	require.NoError(t, err)
	_, err = fw.Write(photo)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(target, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCompositeDownload(t *testing.T) {
	env := newTestEnv(t)

	resp := postPhoto(t, env.ts.URL+"/api/campaigns/summer/composite", photoPNG(t, 200, 100), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Summer-Fest-framed-photo-")

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, phrames.ExportSize, phrames.ExportSize), img.Bounds())

	// Frame border on top, photo through the window.
	_, g, _, _ := img.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), g)
	r, _, _, _ := img.At(540, 540).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	env.srv.exporter.Wait()
	c, err := env.store.CampaignBySlug(context.Background(), "summer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.SupportersCount)
	n, err := env.store.DownloadsOn(context.Background(), c.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCompositeErrors(t *testing.T) {
	env := newTestEnv(t)
	env.addCampaign(t, store.NewCampaign{Slug: "broken", Name: "Broken", FrameURL: env.frame + "/missing.png"})

	t.Run("frame unavailable", func(t *testing.T) {
		resp := postPhoto(t, env.ts.URL+"/api/campaigns/broken/composite", photoPNG(t, 10, 10), nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

		env.srv.exporter.Wait()
		c, err := env.store.CampaignBySlug(context.Background(), "broken")
		require.NoError(t, err)
		assert.Zero(t, c.SupportersCount)
	})
	t.Run("not an image", func(t *testing.T) {
		resp := postPhoto(t, env.ts.URL+"/api/campaigns/summer/composite", []byte("hello, world"), nil)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})
	for _, fields := range []map[string]string{
		{"scale": "big"},
		{"scale": "1", "x": "NaN"},
		{"scale": "1", "y": "Inf"},
		{"scale": "1", "x": "-Inf"},
		{"scale": "1", "x": "1e300"},
		{"scale": "NaN"},
	} {
		t.Run(fmt.Sprintf("bad transform %v", fields), func(t *testing.T) {
			resp := postPhoto(t, env.ts.URL+"/api/campaigns/summer/composite", photoPNG(t, 10, 10), fields)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	t.Run("missing photo", func(t *testing.T) {
		resp, err := http.Post(env.ts.URL+"/api/campaigns/summer/composite", "text/plain", strings.NewReader("x"))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestImageProxyRoute(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/api/image-proxy?url=" + env.frame + "/frame.png")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, framePNG(t), data)
}

func TestImageProxyRefusesInternalHostsByDefault(t *testing.T) {
	env := newTestEnv(t)
	srv, err := New(config.Default(), Deps{
		Store:   env.store,
		Fetcher: proxy.NewFetcher(nil, proxy.Config{}, nil),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, target := range []string{env.frame + "/frame.png", "http://169.254.169.254/latest/meta-data/"} {
		resp, err := http.Get(ts.URL + "/api/image-proxy?url=" + url.QueryEscape(target))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, target)
	}
}

type liveClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialLive(t *testing.T, env *testEnv, path string) *liveClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return &liveClient{t: t, conn: conn}
}

func (c *liveClient) send(msg clientMessage) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// next reads messages until one of type typ arrives, skipping others.
func (c *liveClient) next(typ string) (serverMessage, []byte) {
	c.t.Helper()
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg serverMessage
		require.NoError(c.t, c.conn.ReadJSON(&msg))

		var body []byte
		switch msg.Type {
		case "preview", "exported", "share-file":
			kind, data, err := c.conn.ReadMessage()
			require.NoError(c.t, err)
			require.Equal(c.t, websocket.BinaryMessage, kind)
			body = data
		}
		if msg.Type == typ {
			return msg, body
		}
	}
}

func photoDataURL(t *testing.T, w, h int) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(photoPNG(t, w, h))
}

func TestLiveSession(t *testing.T) {
	env := newTestEnv(t)
	c := dialLive(t, env, "/c/summer/live")

	c.send(clientMessage{Type: "photo", Data: photoDataURL(t, 2000, 1000)})
	msg, body := c.next("preview")
	require.NotNil(t, msg.Transform)
	assert.InDelta(t, 0.4, msg.Transform.Scale, 1e-9)
	assert.Equal(t, 40, msg.Slider)
	preview, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, phrames.PreviewSize, phrames.PreviewSize), preview.Bounds())

	c.send(clientMessage{Type: "zoom-in"})
	msg, _ = c.next("preview")
	assert.InDelta(t, 0.5, msg.Transform.Scale, 1e-9)

	c.send(clientMessage{Type: "pointerdown", X: 200, Y: 200})
	c.send(clientMessage{Type: "pointermove", X: 220, Y: 190})
	c.send(clientMessage{Type: "pointerup"})
	for {
		msg, _ = c.next("preview")
		if msg.Transform.X == 20 {
			break
		}
	}
	assert.Equal(t, -10.0, msg.Transform.Y)

	c.send(clientMessage{Type: "export"})
	msg, body = c.next("exported")
	assert.True(t, strings.HasPrefix(msg.Name, "Summer-Fest-framed-photo-"))
	assert.Equal(t, len(body), msg.Size)
	out, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, phrames.ExportSize, out.Bounds().Dx())

	c.send(clientMessage{Type: "share"})
	msg, _ = c.next("copy-link")
	assert.Equal(t, testBaseURL+"/campaign/summer", msg.URL)
	msg, _ = c.next("notice")
	assert.NotEmpty(t, msg.Message)

	c.send(clientMessage{Type: "hello", CanShareFiles: true})
	c.send(clientMessage{Type: "share"})
	msg, body = c.next("share-file")
	assert.Equal(t, "Summer Fest", msg.Title)
	assert.NotEmpty(t, body)
}

func TestLiveSessionErrors(t *testing.T) {
	env := newTestEnv(t)
	c := dialLive(t, env, "/campaign/summer/live")

	c.send(clientMessage{Type: "export"})
	msg, _ := c.next("error")
	assert.Contains(t, msg.Message, "no photo")

	c.send(clientMessage{Type: "photo", Data: "data:text/plain;base64,aGVsbG8="})
	msg, _ = c.next("error")
	assert.NotEmpty(t, msg.Message)

	c.send(clientMessage{Type: "dance"})
	msg, _ = c.next("error")
	assert.Contains(t, msg.Message, "unknown type")

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{")))
	msg, _ = c.next("error")
	assert.Contains(t, msg.Message, "malformed")
}

func TestCheckOrigin(t *testing.T) {
	env := newTestEnv(t)
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://phrames.test/c/summer/live", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, env.srv.checkOrigin(req("")))
	assert.True(t, env.srv.checkOrigin(req("http://phrames.test")))
	assert.False(t, env.srv.checkOrigin(req("http://evil.test")))

	env.srv.cfg.Server.AllowedOrigins = []string{"https://app.phrames.test"}
	assert.True(t, env.srv.checkOrigin(req("https://app.phrames.test")))
	assert.False(t, env.srv.checkOrigin(req("http://phrames.test")))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrInactive, http.StatusNotFound},
		{store.ErrExpired, http.StatusGone},
		{phrames.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{phrames.ErrNotImage, http.StatusUnsupportedMediaType},
		{phrames.ErrNoPhoto, http.StatusBadRequest},
		{phrames.ErrDecode, http.StatusUnprocessableEntity},
		{phrames.ErrFrameTimeout, http.StatusGatewayTimeout},
		{phrames.ErrFrameUnavailable, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
	assert.Equal(t, "internal error", publicMessage(io.ErrUnexpectedEOF))
}
