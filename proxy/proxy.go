// Package proxy implements the same-origin image proxy. Frame images live
// on third-party storage that does not send CORS headers; the proxy
// re-serves them with permissive CORS so they can be drawn into composites.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/saadchadu/phrames"
	"github.com/saadchadu/phrames/cache"
	"github.com/saadchadu/phrames/internal/metrics"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxBytes      = 10 << 20
	DefaultTimeout       = 15 * time.Second
	DefaultCacheTTL      = time.Hour
	DefaultCacheCapacity = 32
)

// Errors returned by Fetch. StatusFor maps them to HTTP status codes.
var (
	ErrMissingURL     = errors.New("proxy: missing url parameter")
	ErrInvalidURL     = errors.New("proxy: invalid url")
	ErrHostNotAllowed = errors.New("proxy: host not allowed")
	ErrTooLarge       = errors.New("proxy: image too large")
	ErrNotImage       = errors.New("proxy: upstream did not return an image")
	ErrUpstream       = errors.New("proxy: upstream request failed")
	ErrTimeout        = errors.New("proxy: upstream timed out")
)

// Config configures a Fetcher.
type Config struct {
	// AllowedHosts restricts upstream hosts. A host matches an entry
	// exactly or as a subdomain. Empty allows every host.
	AllowedHosts []string

	// MaxBytes caps the upstream body size.
	MaxBytes int64

	// Timeout bounds each upstream request.
	Timeout time.Duration

	// CacheTTL and CacheCapacity size the response cache. A negative
	// CacheTTL disables caching.
	CacheTTL      time.Duration
	CacheCapacity int

	// AllowPrivateNetworks permits upstreams on loopback, private,
	// link-local and other non-public addresses. Off by default.
	AllowPrivateNetworks bool
}

// Entry is a fetched image.
type Entry struct {
	Data        []byte
	ContentType string
}

// Fetcher downloads remote images with validation and caching.
type Fetcher struct {
	client *http.Client
	cfg    Config
	cache  *cache.Cache[string, *Entry]
	logger *slog.Logger
}

// NewFetcher creates a fetcher. A nil client uses one without a global
// timeout; per-request deadlines come from cfg.Timeout.
func NewFetcher(client *http.Client, cfg Config, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if !cfg.AllowPrivateNetworks {
		client = publicOnly(client)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f := &Fetcher{client: client, cfg: cfg, logger: logger}
	if cfg.CacheTTL > 0 {
		f.cache = cache.New[string, *Entry](cache.Config[string]{
			Capacity: cfg.CacheCapacity,
			TTL:      cfg.CacheTTL,
		})
	}
	return f
}

// Fetch returns the image at rawURL and whether it came from the cache.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Entry, bool, error) {
	u, err := f.validate(rawURL)
	if err != nil {
		return nil, false, err
	}
	key := u.String()

	if f.cache != nil {
		if e, ok := f.cache.Get(key); ok {
			metrics.RecordProxyFetch("hit", 0)
			return e, true, nil
		}
	}

	e, err := f.fetch(ctx, key)
	if err != nil {
		metrics.RecordProxyFetch(outcome(err), 0)
		return nil, false, err
	}
	metrics.RecordProxyFetch("miss", len(e.Data))
	if f.cache != nil {
		f.cache.Set(key, e)
	}
	return e, false, nil
}

// Purge drops expired cache entries.
func (f *Fetcher) Purge() int {
	if f.cache == nil {
		return 0
	}
	return f.cache.Purge()
}

func (f *Fetcher) validate(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: no host", ErrInvalidURL)
	}
	if !f.hostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	if ip, err := netip.ParseAddr(u.Hostname()); err == nil && !f.cfg.AllowPrivateNetworks && !isPublic(ip) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, ip)
	}
	u.Fragment = ""
	return u, nil
}

func (f *Fetcher) hostAllowed(host string) bool {
	if len(f.cfg.AllowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range f.cfg.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errPrivateAddress) {
			return nil, fmt.Errorf("%w: %v", ErrHostNotAllowed, err)
		}
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, f.cfg.Timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if resp.ContentLength > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, f.cfg.Timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.cfg.MaxBytes)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}

	f.logger.Debug("proxied image", "url", rawURL, "bytes", len(data), "type", mt.String())
	return &Entry{Data: data, ContentType: mt.String()}, nil
}

var errPrivateAddress = errors.New("non-public address")

// cgnat is the shared address space of RFC 6598.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

func isPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsValid() &&
		!ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() &&
		!ip.IsMulticast() &&
		!ip.IsUnspecified() &&
		!cgnat.Contains(ip)
}

// refuseNonPublic is a net.Dialer Control hook. It sees the resolved
// address, so names pointing at internal hosts and redirects to them are
// refused too.
func refuseNonPublic(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errPrivateAddress, address)
	}
	if !isPublic(ap.Addr()) {
		return fmt.Errorf("%w: %s", errPrivateAddress, ap.Addr())
	}
	return nil
}

// publicOnly returns a copy of client whose transport dials public
// addresses only. Clients with a custom RoundTripper are returned as is.
func publicOnly(client *http.Client) *http.Client {
	var base *http.Transport
	switch t := client.Transport.(type) {
	case nil:
		base = http.DefaultTransport.(*http.Transport)
	case *http.Transport:
		base = t
	default:
		return client
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   refuseNonPublic,
	}
	tr := base.Clone()
	tr.DialContext = dialer.DialContext
	tr.Proxy = nil

	c := *client
	c.Transport = tr
	return &c
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// StatusFor maps a Fetch error to the HTTP status the proxy answers with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingURL), errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrHostNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func outcome(err error) string {
	switch StatusFor(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusUnsupportedMediaType:
		return "not_image"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		return "upstream_error"
	}
}

// FrameSource adapts the fetcher to a phrames.FrameSource so server-side
// exports load frames in-process through the same validation and cache.
func (f *Fetcher) FrameSource() phrames.FrameSource {
	return phrames.NewFrameSource("proxy", func(ctx context.Context, frameURL string) (*phrames.Image, error) {
		e, _, err := f.Fetch(ctx, frameURL)
		if err != nil {
			return nil, err
		}
		return phrames.DecodeFrame(e.Data)
	})
}
