// Package client talks to a running daemon over its control API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

// ErrUnauthorized is returned when the daemon rejects the credentials
var ErrUnauthorized = errors.New("daemon rejected credentials")

// APIError is a structured failure reported by the daemon
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Config configures a Client
type Config struct {
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
}

// Client is a control API client
type Client struct {
	http *resty.Client
}

// New creates a client
func New(cfg Config) *Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetJSONUnmarshaler(sonic.ConfigStd.Unmarshal).
		SetHeader("Accept", "application/json")
	if cfg.User != "" || cfg.Password != "" {
		c.SetBasicAuth(cfg.User, cfg.Password)
	}
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return &Client{http: c}
}

// Health returns the daemon health document
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/health")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the daemon status snapshot
func (c *Client) Status(ctx context.Context) (*types.Snapshot, error) {
	var snap types.Snapshot
	resp, err := c.http.R().SetContext(ctx).SetResult(&snap).Get("/status")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Install installs an app from a package URL or a path on the daemon host
func (c *Client) Install(ctx context.Context, name, url string) error {
	_, err := c.post(ctx, "/app-install", map[string]string{"app_name": name, "url": url})
	return err
}

// InstallFile uploads a local package archive
func (c *Client) InstallFile(ctx context.Context, name, path string) error {
	var res types.Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"app_name": name}).
		SetFile("data", path).
		SetResult(&res).
		Post("/app-install")
	if err := check(resp, err); err != nil {
		return err
	}
	return result(res)
}

// Remove uninstalls an app
func (c *Client) Remove(ctx context.Context, name string) error {
	_, err := c.post(ctx, "/app-remove", map[string]string{"app_name": name})
	return err
}

// RunOptions are the optional inputs of Run
type RunOptions struct {
	Args      []string
	NCURL     string
	UserToken string
}

// Run launches an app and returns the new instance pid
func (c *Client) Run(ctx context.Context, name string, opts RunOptions) (int, error) {
	args := "[]"
	if len(opts.Args) > 0 {
		encoded, err := sonic.ConfigStd.MarshalToString(opts.Args)
		if err != nil {
			return 0, err
		}
		args = encoded
	}
	form := map[string]string{"app_name": name, "args": args}
	if opts.NCURL != "" {
		form["nc_url"] = opts.NCURL
	}
	if opts.UserToken != "" {
		form["user_token"] = opts.UserToken
	}

	res, err := c.post(ctx, "/app-run", form)
	if err != nil {
		return 0, err
	}
	return res.PID, nil
}

// Stop signals an app instance
func (c *Client) Stop(ctx context.Context, pid int) error {
	_, err := c.post(ctx, "/app-stop", map[string]string{"pid": strconv.Itoa(pid)})
	return err
}

// GetOption reads a global option, or a per-app override when app is set
func (c *Client) GetOption(ctx context.Context, key, app string) (string, error) {
	var value string
	req := c.http.R().SetContext(ctx).SetQueryParam("key", key).SetResult(&value)
	if app != "" {
		req.SetQueryParam("app_name", app)
	}
	resp, err := req.Get("/option")
	if err := check(resp, err); err != nil {
		return "", err
	}
	return value, nil
}

// SetOption writes a global option, or a per-app override when app is set
func (c *Client) SetOption(ctx context.Context, key, value, app string) error {
	form := map[string]string{"key": key, "value": value}
	if app != "" {
		form["app_name"] = app
	}
	_, err := c.post(ctx, "/option", form)
	return err
}

func (c *Client) post(ctx context.Context, path string, form map[string]string) (types.Result, error) {
	var res types.Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&res).
		SetError(&res).
		Post(path)
	if err := check(resp, err); err != nil {
		if resp != nil && resp.StatusCode() == http.StatusBadRequest && res.Error != "" {
			return res, &APIError{Message: res.Error}
		}
		return res, err
	}
	return res, result(res)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.IsError():
		return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode())
	}
	return nil
}

func result(res types.Result) error {
	if res.Status != types.StatusOK {
		msg := res.Error
		if msg == "" {
			msg = "operation failed"
		}
		return &APIError{Message: msg}
	}
	return nil
}
