// Package installer unpacks app packages into the apps directory and
// removes them again.
//
// An install either completes (files in apps/<name>, app registered, hook
// succeeded) or leaves the apps directory and the registry as they were.
// Packages are extracted into a hidden staging directory first; an app
// being upgraded is moved aside and restored if the new version fails.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/seadaemon/internal/domain/manifest"
	"github.com/GriffinCanCode/seadaemon/internal/domain/store"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
	"github.com/GriffinCanCode/seadaemon/internal/shared/utils"
)

// Registry is the part of the config store the installer updates
type Registry interface {
	App(name string) (store.AppRecord, bool)
	AppsDir() string
	AppDir(name string) string
	Register(name string) (bool, error)
	Unregister(name string) error
}

// Terminator stops every instance of an app
type Terminator interface {
	StopApp(name string) (int, error)
}

// Result describes a completed install
type Result struct {
	Name       string
	Dir        string
	Manifest   *manifest.Manifest
	Upgraded   bool
	HookOutput string
}

// Installer installs and removes app packages
type Installer struct {
	registry    Registry
	terminator  Terminator
	fetcher     *Fetcher
	hookTimeout time.Duration
	logger      *zap.Logger
	tracer      *tracing.Tracer
}

// New creates an installer. hookTimeout of zero lets hooks run unbounded.
func New(registry Registry, terminator Terminator, fetcher *Fetcher, hookTimeout time.Duration, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{
		registry:    registry,
		terminator:  terminator,
		fetcher:     fetcher,
		hookTimeout: hookTimeout,
		logger:      logger,
	}
}

// WithTracer records a span per install step
func (i *Installer) WithTracer(tracer *tracing.Tracer) *Installer {
	i.tracer = tracer
	return i
}

// Install fetches src and installs it as name. Every error is wrapped in
// types.ErrInstallFailure and leaves no trace of the attempt.
func (i *Installer) Install(ctx context.Context, name string, src Source) (*Result, error) {
	if err := utils.ValidateAppName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInstallFailure, err)
	}
	span, ctx := i.tracer.StartSpan(ctx, "install")
	span.SetTag("app", name)
	defer span.Finish()

	fail := func(step string, err error) (*Result, error) {
		span.SetError(err)
		span.SetTag("step", step)
		i.logger.Warn("App install failed",
			zap.String("app", name),
			zap.String("source", src.String()),
			zap.String("step", step),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", types.ErrInstallFailure, step, err)
	}

	appsDir := i.registry.AppsDir()
	var archive string
	err := i.step(ctx, "fetch", func(ctx context.Context) error {
		var err error
		archive, err = i.fetcher.Fetch(ctx, src, appsDir)
		return err
	})
	if err != nil {
		return fail("fetch", err)
	}
	defer os.Remove(archive)

	staging := filepath.Join(appsDir, ".staging-"+uuid.NewString())
	defer os.RemoveAll(staging)

	if err := i.step(ctx, "extract", func(context.Context) error {
		return Extract(archive, staging)
	}); err != nil {
		return fail("extract", err)
	}

	m, err := manifest.Load(staging)
	if err != nil {
		return fail("manifest", err)
	}
	if err := m.Validate(); err != nil {
		return fail("manifest", err)
	}

	final := i.registry.AppDir(name)
	_, wasRegistered := i.registry.App(name)

	backup := ""
	if _, err := os.Stat(final); err == nil {
		backup = filepath.Join(appsDir, ".backup-"+uuid.NewString())
		if err := os.Rename(final, backup); err != nil {
			return fail("backup", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fail("backup", err)
	}

	rollback := func() {
		if err := os.RemoveAll(final); err != nil {
			i.logger.Error("Rollback could not remove app dir", zap.String("dir", final), zap.Error(err))
		}
		if backup != "" {
			if err := os.Rename(backup, final); err != nil {
				i.logger.Error("Rollback could not restore previous version", zap.String("backup", backup), zap.Error(err))
			}
		}
		if !wasRegistered {
			if err := i.registry.Unregister(name); err != nil {
				i.logger.Error("Rollback could not unregister app", zap.String("app", name), zap.Error(err))
			}
		}
	}

	if err := os.Rename(staging, final); err != nil {
		rollback()
		return fail("move", err)
	}
	if _, err := i.registry.Register(name); err != nil {
		rollback()
		return fail("register", err)
	}

	m.Path = filepath.Join(final, filepath.Base(m.Path))
	result := &Result{Name: name, Dir: final, Manifest: m, Upgraded: backup != ""}

	if m.HasHook() {
		var output string
		err := i.step(ctx, "hook", func(ctx context.Context) error {
			var err error
			output, err = runHook(ctx, final, m.PostInstall, i.hookTimeout)
			return err
		})
		if err != nil {
			rollback()
			return fail("hook", err)
		}
		result.HookOutput = output
	}

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			i.logger.Warn("Failed to remove previous version", zap.String("backup", backup), zap.Error(err))
		}
	}

	i.logger.Info("App installed",
		zap.String("app", name),
		zap.String("source", src.String()),
		zap.Bool("upgraded", result.Upgraded))
	return result, nil
}

func (i *Installer) step(ctx context.Context, name string, fn func(context.Context) error) error {
	span, ctx := i.tracer.StartSpan(ctx, "install."+name)
	err := fn(ctx)
	span.SetError(err)
	span.Finish()
	return err
}

// Remove stops every instance of name, unregisters it and deletes its
// directory. Unknown apps and missing directories are not errors.
func (i *Installer) Remove(ctx context.Context, name string) error {
	if err := utils.ValidateAppName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := i.terminator.StopApp(name); err != nil {
		i.logger.Warn("Some instances could not be signalled", zap.String("app", name), zap.Error(err))
	}
	if err := i.registry.Unregister(name); err != nil {
		return fmt.Errorf("failed to unregister %s: %w", name, err)
	}
	if err := os.RemoveAll(i.registry.AppDir(name)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}

	i.logger.Info("App removed", zap.String("app", name))
	return nil
}
