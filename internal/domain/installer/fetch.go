package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/resilience"
)

// ErrArchiveTooLarge is returned when a package exceeds the size cap
var ErrArchiveTooLarge = errors.New("package archive exceeds size limit")

// Source is where a package comes from. Exactly one of URL and Body is used;
// Body wins when set.
type Source struct {
	URL  string
	Body io.Reader
	// Name labels an uploaded body in logs
	Name string
}

// String describes the source for logs and errors
func (s Source) String() string {
	if s.Body != nil {
		if s.Name != "" {
			return "upload:" + s.Name
		}
		return "upload"
	}
	return s.URL
}

// FetchConfig bounds package retrieval. Zero values mean unbounded.
type FetchConfig struct {
	Timeout      time.Duration
	MaxBytes     int64
	AllowLocal   bool
	UserAgent    string
	RetryCount   int
	BreakerOpen  time.Duration
	BreakerTrips uint32
}

// Fetcher copies package archives from URLs, local paths or uploads
type Fetcher struct {
	client   *resty.Client
	breakers *resilience.Group
	cfg      FetchConfig
	logger   *zap.Logger
}

// NewFetcher creates a fetcher with a retrying HTTP client and per-host breakers
func NewFetcher(cfg FetchConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "seadaemon/1.0"
	}
	if cfg.BreakerOpen == 0 {
		cfg.BreakerOpen = 30 * time.Second
	}
	if cfg.BreakerTrips == 0 {
		cfg.BreakerTrips = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryCount
	retryClient.Logger = nil

	client := resty.New().
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", cfg.UserAgent)
	client.SetTransport(retryClient.HTTPClient.Transport)

	trips := cfg.BreakerTrips
	breakers := resilience.NewGroup(resilience.Settings{
		Timeout: cfg.BreakerOpen,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(host string, from, to resilience.State) {
			logger.Warn("Package host breaker changed state",
				zap.String("host", host),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return &Fetcher{client: client, breakers: breakers, cfg: cfg, logger: logger}
}

// Fetch stores the package in a new file under dir and returns its path.
// The caller removes the file.
func (f *Fetcher) Fetch(ctx context.Context, src Source, dir string) (string, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	tmp, err := os.CreateTemp(dir, ".package-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	if err := f.fetchInto(ctx, src, path); err != nil {
		os.Remove(path)
		return "", err
	}

	if f.cfg.MaxBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			os.Remove(path)
			return "", err
		}
		if info.Size() > f.cfg.MaxBytes {
			os.Remove(path)
			return "", fmt.Errorf("%w: %d > %d bytes", ErrArchiveTooLarge, info.Size(), f.cfg.MaxBytes)
		}
	}
	return path, nil
}

func (f *Fetcher) fetchInto(ctx context.Context, src Source, path string) error {
	if src.Body != nil {
		return f.copyInto(ctx, src.Body, path)
	}
	if strings.TrimSpace(src.URL) == "" {
		return errors.New("package source is empty")
	}

	u, err := url.Parse(src.URL)
	if err != nil {
		return fmt.Errorf("invalid package url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.download(ctx, u, path)
	case "file", "":
		if !f.cfg.AllowLocal {
			return fmt.Errorf("local package sources are disabled: %s", src.URL)
		}
		local := u.Path
		if u.Scheme == "" {
			local = src.URL
		}
		file, err := os.Open(filepath.Clean(local))
		if err != nil {
			return fmt.Errorf("failed to open package: %w", err)
		}
		defer file.Close()
		return f.copyInto(ctx, file, path)
	default:
		return fmt.Errorf("unsupported package url scheme %q", u.Scheme)
	}
}

func (f *Fetcher) download(ctx context.Context, u *url.URL, path string) error {
	var resp *resty.Response
	err := f.breakers.Get(u.Host).Do(func() error {
		var err error
		resp, err = f.client.R().
			SetContext(ctx).
			SetOutput(path).
			Get(u.String())
		if err != nil {
			return err
		}
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("download failed: HTTP %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", u.Redacted(), err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("failed to download %s: HTTP %d", u.Redacted(), resp.StatusCode())
	}

	f.logger.Debug("Package downloaded",
		zap.String("url", u.Redacted()),
		zap.Int64("bytes", resp.Size()),
		zap.Duration("took", resp.Time()))
	return nil
}

func (f *Fetcher) copyInto(ctx context.Context, r io.Reader, path string) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if f.cfg.MaxBytes > 0 {
		r = io.LimitReader(r, f.cfg.MaxBytes+1)
	}
	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: r}); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy package: %w", err)
	}
	return out.Close()
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
