package phrames

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultExportTimeout bounds frame loading during an export.
const DefaultExportTimeout = 12 * time.Second

// counterTimeout bounds each fire-and-forget counter update.
const counterTimeout = 10 * time.Second

// CampaignRef is the part of a campaign the engine needs.
type CampaignRef struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	FrameURL string `json:"frameURL"`
	PageURL  string `json:"pageURL"`
}

// Counters is the datastore collaborator incremented after a download.
type Counters interface {
	IncrementSupporters(ctx context.Context, campaignID string) error
	IncrementDownloads(ctx context.Context, campaignID string, day time.Time) error
}

// Blob is an encoded composite ready to be delivered.
type Blob struct {
	Data        []byte
	ContentType string
	Name        string
}

// DownloadTarget delivers a finished composite to the visitor.
type DownloadTarget interface {
	Deliver(blob *Blob) error
}

// DownloadTargetFunc adapts a function to DownloadTarget.
type DownloadTargetFunc func(blob *Blob) error

// Deliver implements DownloadTarget.
func (f DownloadTargetFunc) Deliver(blob *Blob) error { return f(blob) }

// FrameSource loads a frame image by URL. Exporters try their sources in
// order until one succeeds.
type FrameSource interface {
	Name() string
	LoadFrame(ctx context.Context, frameURL string) (*Image, error)
}

type frameSourceFunc struct {
	name string
	fn   func(ctx context.Context, frameURL string) (*Image, error)
}

func (s frameSourceFunc) Name() string { return s.name }

func (s frameSourceFunc) LoadFrame(ctx context.Context, frameURL string) (*Image, error) {
	return s.fn(ctx, frameURL)
}

// NewFrameSource adapts a function to FrameSource.
func NewFrameSource(name string, fn func(ctx context.Context, frameURL string) (*Image, error)) FrameSource {
	return frameSourceFunc{name: name, fn: fn}
}

// ProxySource loads frames through the same-origin image proxy
// (Endpoint?url=<frameURL>), which re-serves them with permissive CORS.
type ProxySource struct {
	Endpoint string
	Client   *http.Client
}

// Name implements FrameSource.
func (p *ProxySource) Name() string { return "proxy" }

// LoadFrame implements FrameSource.
func (p *ProxySource) LoadFrame(ctx context.Context, frameURL string) (*Image, error) {
	u, err := url.Parse(p.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("phrames: proxy endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", frameURL)
	u.RawQuery = q.Encode()
	return fetchFrame(ctx, p.Client, u.String())
}

// DirectSource loads frames straight from their remote URL.
type DirectSource struct {
	Client *http.Client
}

// Name implements FrameSource.
func (d *DirectSource) Name() string { return "direct" }

// LoadFrame implements FrameSource.
func (d *DirectSource) LoadFrame(ctx context.Context, frameURL string) (*Image, error) {
	return fetchFrame(ctx, d.Client, frameURL)
}

func fetchFrame(ctx context.Context, client *http.Client, rawURL string) (*Image, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPhotoBytes+1))
	if err != nil {
		return nil, err
	}
	return DecodeFrame(data)
}

// ShareOutcome tells which sharing path succeeded.
type ShareOutcome int

const (
	// SharedFile means the composite was handed to the native share sheet.
	SharedFile ShareOutcome = iota + 1

	// CopiedLink means the campaign link was copied instead.
	CopiedLink
)

// String returns a short name for the outcome.
func (o ShareOutcome) String() string {
	switch o {
	case SharedFile:
		return "shared-file"
	case CopiedLink:
		return "copied-link"
	default:
		return "none"
	}
}

// Sharer is the platform share capability of a client.
type Sharer interface {
	CanShareFiles() bool
	ShareFile(ctx context.Context, blob *Blob, title string) error
	CopyLink(ctx context.Context, link string) error
	Notify(message string)
}

// ExporterConfig configures an Exporter.
type ExporterConfig struct {
	// Sources are tried in order to load the frame.
	Sources []FrameSource

	// Counters receives supporter and download increments. Optional.
	Counters Counters

	// Timeout bounds frame loading. Zero means DefaultExportTimeout.
	Timeout time.Duration

	// Now returns the current time. Zero means time.Now.
	Now func() time.Time
}

// Exporter produces full-resolution composites and delivers them.
type Exporter struct {
	compositor *Compositor
	sources    []FrameSource
	counters   Counters
	timeout    time.Duration
	now        func() time.Time

	wg sync.WaitGroup
}

// NewExporter creates an exporter rendering with c.
func NewExporter(c *Compositor, cfg ExporterConfig) *Exporter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExportTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Exporter{
		compositor: c,
		sources:    cfg.Sources,
		counters:   cfg.Counters,
		timeout:    cfg.Timeout,
		now:        cfg.Now,
	}
}

// Export renders photo under t with the frame at frameURL onto a fresh
// ExportSize surface and encodes it as PNG. It fails rather than degrading
// when the frame cannot be loaded.
func (e *Exporter) Export(ctx context.Context, photo *Image, frameURL string, t Transform) (*Blob, error) {
	if photo == nil {
		return nil, ErrNoPhoto
	}

	frame, err := e.LoadFrame(ctx, frameURL)
	if err != nil {
		return nil, err
	}

	dst := NewSurface(ExportSize, ExportSize)
	if err := e.compositor.RenderComposite(dst, photo, frame, t, ExportSize); err != nil {
		return nil, err
	}

	data, err := dst.PNG()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEncode
	}
	return &Blob{Data: data, ContentType: "image/png"}, nil
}

// LoadFrame walks the configured sources under the export deadline.
func (e *Exporter) LoadFrame(ctx context.Context, frameURL string) (*Image, error) {
	if len(e.sources) == 0 {
		return nil, ErrNoFrameSource
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	errs := make([]error, 0, len(e.sources))
	for _, src := range e.sources {
		frame, err := src.LoadFrame(ctx, frameURL)
		if err == nil {
			return frame, nil
		}
		Logger().Debug("frame source failed", "source", src.Name(), "url", frameURL, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))

		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s", ErrFrameTimeout, e.timeout)
			}
			return nil, ctxErr
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrFrameUnavailable, errors.Join(errs...))
}

// Download exports the composite for campaign, hands it to target, and then
// increments the campaign's supporter and download counters in the
// background. Nothing is delivered and no counter runs when the export
// fails; counter failures are logged and never reach the caller.
func (e *Exporter) Download(ctx context.Context, photo *Image, campaign CampaignRef, t Transform, target DownloadTarget) (*Blob, error) {
	blob, err := e.Export(ctx, photo, campaign.FrameURL, t)
	if err != nil {
		return nil, err
	}
	now := e.now()
	blob.Name = DownloadName(campaign.Name, now)

	if err := target.Deliver(blob); err != nil {
		return nil, fmt.Errorf("phrames: deliver download: %w", err)
	}
	e.track(campaign.ID, now)
	return blob, nil
}

// Share hands blob to the native share sheet when the client supports file
// sharing, and otherwise copies the campaign page link and notifies the
// user. Both paths are successful outcomes.
func (e *Exporter) Share(ctx context.Context, blob *Blob, campaign CampaignRef, sharer Sharer) (ShareOutcome, error) {
	if blob != nil && sharer.CanShareFiles() {
		err := sharer.ShareFile(ctx, blob, campaign.Name)
		if err == nil {
			return SharedFile, nil
		}
		Logger().Debug("file share failed, copying link", "campaign", campaign.ID, "err", err)
	}

	if err := sharer.CopyLink(ctx, campaign.PageURL); err != nil {
		return 0, fmt.Errorf("phrames: copy link: %w", err)
	}
	sharer.Notify("Campaign link copied to clipboard")
	return CopiedLink, nil
}

// Wait blocks until background counter updates have finished.
func (e *Exporter) Wait() {
	e.wg.Wait()
}

func (e *Exporter) track(campaignID string, at time.Time) {
	if e.counters == nil || campaignID == "" {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), counterTimeout)
		defer cancel()

		if err := e.counters.IncrementSupporters(ctx, campaignID); err != nil {
			Logger().Warn("increment supporters failed", "campaign", campaignID, "err", err)
		}
		if err := e.counters.IncrementDownloads(ctx, campaignID, at); err != nil {
			Logger().Warn("increment downloads failed", "campaign", campaignID, "err", err)
		}
	}()
}
