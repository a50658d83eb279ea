package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saadchadu/phrames"
	"github.com/saadchadu/phrames/internal/metrics"
	"github.com/saadchadu/phrames/store"
)

// binding identifies which page component a request came through.
type binding int

const (
	bindingShare    binding = iota // /c/{slug}
	bindingCampaign                // /campaign/{slug}
)

func (b binding) prefix() string {
	if b == bindingShare {
		return "/c/"
	}
	return "/campaign/"
}

type limitsView struct {
	PreviewSize int     `json:"previewSize"`
	ExportSize  int     `json:"exportSize"`
	MinScale    float64 `json:"minScale"`
	MaxScale    float64 `json:"maxScale"`
	ZoomStep    float64 `json:"zoomStep"`
	SliderMin   int     `json:"sliderMin"`
	SliderMax   int     `json:"sliderMax"`
	MaxPhoto    int     `json:"maxPhotoBytes"`
}

type creatorView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type pageView struct {
	Campaign    campaignView `json:"campaign"`
	ShareURL    string       `json:"shareURL,omitempty"`
	Creator     *creatorView `json:"creator,omitempty"`
	LiveURL     string       `json:"liveURL"`
	CompositeAt string       `json:"compositeURL"`
	ProxyURL    string       `json:"proxyURL"`
	Limits      limitsView   `json:"limits"`
}

type campaignView struct {
	ID              string     `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	FrameURL        string     `json:"frameURL"`
	SupportersCount int64      `json:"supportersCount"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

func viewOf(c *store.Campaign) campaignView {
	return campaignView{
		ID:              c.ID,
		Slug:            c.Slug,
		Name:            c.Name,
		Description:     c.Description,
		FrameURL:        c.FrameURL,
		SupportersCount: c.SupportersCount,
		ExpiresAt:       c.ExpiresAt,
	}
}

var limits = limitsView{
	PreviewSize: phrames.PreviewSize,
	ExportSize:  phrames.ExportSize,
	MinScale:    phrames.MinScale,
	MaxScale:    phrames.MaxScale,
	ZoomStep:    phrames.ZoomStep,
	SliderMin:   phrames.SliderMin,
	SliderMax:   phrames.SliderMax,
	MaxPhoto:    phrames.MaxPhotoBytes,
}

// campaign loads the slug's campaign and checks it can be used now.
func (s *Server) campaign(ctx context.Context, slug string) (*store.Campaign, error) {
	c, err := s.store.CampaignBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := c.Available(s.now()); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Server) baseURL() string {
	return strings.TrimRight(s.cfg.Server.BaseURL, "/")
}

func (s *Server) handlePage(b binding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.campaign(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			writeError(w, statusFor(err), publicMessage(err))
			return
		}

		base := s.baseURL()
		view := pageView{
			Campaign:    viewOf(c),
			LiveURL:     liveURL(base, b.prefix()+c.Slug+"/live"),
			CompositeAt: base + "/api/campaigns/" + c.Slug + "/composite",
			ProxyURL:    base + "/api/image-proxy",
			Limits:      limits,
		}
		switch b {
		case bindingShare:
			view.ShareURL = base + "/c/" + c.Slug
		case bindingCampaign:
			view.Creator = &creatorView{ID: c.CreatorID, Name: c.CreatorName}
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func liveURL(base, path string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + path
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + path
	}
	return base + path
}

func (s *Server) handleCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.CampaignBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, statusFor(err), publicMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		campaignView
		Status string `json:"status"`
	}{viewOf(c), c.Status})
}

// handleComposite renders a composite from a multipart upload:
// "photo" (file) plus optional "x", "y" and "scale" fields. Without
// "scale" the photo is auto-fitted.
func (s *Server) handleComposite(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaign(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, statusFor(err), publicMessage(err))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, phrames.MaxPhotoBytes+1<<20)
	if err := r.ParseMultipartForm(phrames.MaxPhotoBytes + 1<<20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form with a photo")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing photo")
		return
	}
	defer func() { _ = file.Close() }()

	photo, err := phrames.ReadPhoto(file)
	if err != nil {
		writeError(w, statusFor(err), publicMessage(err))
		return
	}

	t, err := transformFromForm(r, photo)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	delivered := false
	target := phrames.DownloadTargetFunc(func(blob *phrames.Blob) error {
		delivered = true
		w.Header().Set("Content-Type", blob.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": blob.Name}))
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(blob.Data)
		return err
	})
	_, err = s.exporter.Download(r.Context(), photo, c.Ref(s.baseURL()), t, target)
	metrics.RecordExport(err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("composite failed", "campaign", c.ID, "delivered", delivered, "err", err)
		if !delivered {
			writeError(w, statusFor(err), publicMessage(err))
		}
	}
}

// maxFormValue bounds x, y and scale. Offsets beyond it place the photo
// far outside any canvas.
const maxFormValue = 1e6

func transformFromForm(r *http.Request, photo *phrames.Image) (phrames.Transform, error) {
	if r.FormValue("scale") == "" {
		return phrames.AutoFit(photo.Width(), photo.Height(), phrames.PreviewSize), nil
	}
	var t phrames.Transform
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"x", &t.X}, {"y", &t.Y}, {"scale", &t.Scale}} {
		v := r.FormValue(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) > maxFormValue {
			return t, fmt.Errorf("invalid %s: %q", f.name, v)
		}
		*f.dst = n
	}
	return t.Clamp(), nil
}
