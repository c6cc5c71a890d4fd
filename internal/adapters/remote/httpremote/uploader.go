// Package httpremote uploads project workspaces to a remote store over HTTP.
package httpremote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
)

// Defaults applied to zero Config fields.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxTries        = 3
	DefaultInitialInterval = 200 * time.Millisecond
)

// CorrelationHeader carries the correlation id of the sync run.
const CorrelationHeader = "X-Correlation-ID"

// Config configures an Uploader.
type Config struct {
	// Endpoint is the base URL; projects are PUT to <Endpoint>/projects/<id>.
	Endpoint string
	Token    string
	// Threshold is the automatic sync size limit in bytes; 0 disables it.
	Threshold       int64
	Timeout         time.Duration
	MaxTries        uint
	InitialInterval time.Duration
}

// Uploader implements ports.RemoteUploader.
type Uploader struct {
	cfg    Config
	base   *url.URL
	codec  ports.WorkspaceCodec
	client *http.Client
	logger *logging.Logger
}

var _ ports.RemoteUploader = (*Uploader)(nil)

// New creates an Uploader that encodes workspaces with codec.
func New(cfg Config, codec ports.WorkspaceCodec, logger *logging.Logger) (*Uploader, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote endpoint must be an http(s) URL, got %q", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	return &Uploader{
		cfg:    cfg,
		base:   base,
		codec:  codec,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.OrDefault(logger),
	}, nil
}

// Threshold returns the automatic sync size limit in bytes.
func (u *Uploader) Threshold() int64 {
	return u.cfg.Threshold
}

// UploadProject implements ports.RemoteUploader.
func (u *Uploader) UploadProject(ctx context.Context, projectID string, h ports.WorkspaceHandle) error {
	data, err := u.codec.Encode(h)
	if err != nil {
		return fmt.Errorf("could not encode project %s: %w", projectID, err)
	}
	return u.put(ctx, projectID, data)
}

// UploadProjectWithThreshold implements ports.RemoteUploader. The threshold
// is checked against sizeHint before anything is encoded or sent.
func (u *Uploader) UploadProjectWithThreshold(ctx context.Context, projectID string, h ports.WorkspaceHandle, sizeHint int64) error {
	if u.cfg.Threshold > 0 && sizeHint > u.cfg.Threshold {
		return domainerrors.ThresholdExceeded(sizeHint, u.cfg.Threshold)
	}
	return u.UploadProject(ctx, projectID, h)
}

func (u *Uploader) projectURL(projectID string) string {
	return u.base.JoinPath("projects", projectID).String()
}

func (u *Uploader) put(ctx context.Context, projectID string, data []byte) error {
	target := u.projectURL(projectID)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.cfg.InitialInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := u.send(ctx, target, data)
		if err != nil {
			u.logger.WarnContext(ctx, "upload attempt failed",
				"project_id", projectID,
				"attempt", attempt,
				"error", err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(u.cfg.MaxTries),
	)
	if err != nil {
		return fmt.Errorf("upload of project %s failed after %d attempt(s): %w", projectID, attempt, err)
	}
	u.logger.DebugContext(ctx, "project uploaded",
		"project_id", projectID,
		"bytes", len(data),
		"attempts", attempt)
	return nil
}

// send performs one PUT. Client errors other than 408 and 429 are permanent.
func (u *Uploader) send(ctx context.Context, target string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if u.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+u.cfg.Token)
	}
	if id := logging.CorrelationID(ctx); id != "" {
		req.Header.Set(CorrelationHeader, id)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			return backoff.RetryAfter(secs)
		}
		return statusError(resp.StatusCode, body)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return statusError(resp.StatusCode, body)
	default:
		return backoff.Permanent(statusError(resp.StatusCode, body))
	}
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("remote returned %d %s", code, http.StatusText(code))
	}
	return fmt.Errorf("remote returned %d: %s", code, msg)
}
