package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/seadaemon/internal/api/middleware"
	"github.com/GriffinCanCode/seadaemon/internal/domain/control"
	"github.com/GriffinCanCode/seadaemon/internal/domain/installer"
	"github.com/GriffinCanCode/seadaemon/internal/domain/supervisor"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

// UploadField is the multipart field carrying an uploaded package
const UploadField = "data"

// Handlers contains all HTTP handlers
type Handlers struct {
	ctrl    *control.Controller
	metrics *monitoring.Metrics
	logger  *zap.Logger
	version string
}

// NewHandlers creates a new handler set
func NewHandlers(ctrl *control.Controller, metrics *monitoring.Metrics, logger *zap.Logger, version string) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		ctrl:    ctrl,
		metrics: metrics,
		logger:  logger,
		version: version,
	}
}

// Health handles liveness checks
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "seadaemon",
		"version": h.version,
	}
	if h.metrics != nil {
		resp["uptime_seconds"] = int64(h.metrics.Uptime().Seconds())
	}
	c.JSON(http.StatusOK, resp)
}

// Status reports registered apps, tracked instances and options
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Status())
}

// InstallApp installs an app from an uploaded archive or a package URL
func (h *Handlers) InstallApp(c *gin.Context) {
	var req types.InstallRequest
	if err := bind(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}

	src := installer.Source{URL: strings.TrimSpace(req.PackageURL())}
	if file, err := c.FormFile(UploadField); err == nil {
		f, err := file.Open()
		if err != nil {
			h.fail(c, "install", fmt.Errorf("%w: %v", types.ErrInstallFailure, err))
			return
		}
		defer f.Close()
		src = installer.Source{Body: f, Name: file.Filename}
	} else if src.URL == "" {
		h.badRequest(c, errors.New("either an uploaded package or url is required"))
		return
	}

	res, err := h.ctrl.Install(c.Request.Context(), req.AppName, src)
	if err != nil {
		h.fail(c, "install", err)
		return
	}
	if res.HookOutput != "" {
		h.logger.Debug("Post-install hook output",
			zap.String("app", res.Name),
			zap.String("output", res.HookOutput))
	}
	c.JSON(http.StatusOK, types.OK())
}

// RemoveApp stops and uninstalls an app
func (h *Handlers) RemoveApp(c *gin.Context) {
	var req types.AppRequest
	if err := bind(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.ctrl.Remove(c.Request.Context(), req.AppName); err != nil {
		h.fail(c, "remove", err)
		return
	}
	c.JSON(http.StatusOK, types.OK())
}

// RunApp launches an instance of an app
func (h *Handlers) RunApp(c *gin.Context) {
	var req types.RunRequest
	if err := bind(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}

	pid, err := h.ctrl.Run(c.Request.Context(), req.AppName, supervisor.RunParams{
		Args:      req.Args,
		NCURL:     req.NCURL,
		UserToken: req.UserToken,
	})
	if err != nil {
		h.fail(c, "run", err)
		return
	}

	res := types.OK()
	res.PID = pid
	c.JSON(http.StatusOK, res)
}

// StopApp signals a tracked instance
func (h *Handlers) StopApp(c *gin.Context) {
	var req types.StopRequest
	if err := bind(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.ctrl.Stop(req.Target()); err != nil {
		h.fail(c, "stop", err)
		return
	}
	c.JSON(http.StatusOK, types.OK())
}

// GetOption returns the value of a global option or per-app override as a
// JSON string. Unknown keys and apps read as "".
func (h *Handlers) GetOption(c *gin.Context) {
	var req types.OptionRequest
	if err := bind(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.Key == "" {
		h.badRequest(c, errors.New("key is required"))
		return
	}

	value, err := h.ctrl.GetOption(req.Key, req.AppName)
	if err != nil && !errors.Is(err, types.ErrAppNotFound) {
		h.fail(c, "option_get", err)
		return
	}
	c.JSON(http.StatusOK, value)
}

// SetOption writes a global option or per-app override
func (h *Handlers) SetOption(c *gin.Context) {
	var req types.OptionRequest
	if err := bind(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.Key == "" {
		h.badRequest(c, errors.New("key is required"))
		return
	}

	if err := h.ctrl.SetOption(req.Key, req.Value, req.AppName); err != nil {
		h.fail(c, "option_set", err)
		return
	}
	c.JSON(http.StatusOK, types.OK())
}

func (h *Handlers) fail(c *gin.Context, operation string, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.Error(err),
	}
	if control.IsClientError(err) {
		h.logger.Info("Request rejected", fields...)
	} else {
		h.logger.Warn("Operation failed", fields...)
	}
	_ = c.Error(err)
	c.JSON(http.StatusOK, types.Fail(err))
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, types.Fail(err))
}
