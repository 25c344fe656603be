package predictor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Observer receives prediction and lifecycle events; monitoring.Metrics
// implements it.
type Observer interface {
	RecordPrediction(approved bool, probability float64, elapsed time.Duration, cached bool)
	RecordError(kind string)
	RecordReload(version, modelType string, scores map[string]float64, err error)
	SessionOpened()
	SessionClosed()
}

type nopObserver struct{}

func (nopObserver) RecordPrediction(bool, float64, time.Duration, bool)    {}
func (nopObserver) RecordError(string)                                     {}
func (nopObserver) RecordReload(string, string, map[string]float64, error) {}
func (nopObserver) SessionOpened()                                         {}
func (nopObserver) SessionClosed()                                         {}

// ErrNotLoaded is returned before the first load attempt.
var ErrNotLoaded = errors.New("artifacts not loaded")

// Registry holds the predictor currently serving. A failed reload keeps the
// previous predictor and records the error.
type Registry struct {
	paths    Paths
	opts     Options
	observer Observer
	logger   *zap.Logger
	debounce time.Duration

	current atomic.Pointer[Predictor]

	mu      sync.RWMutex
	lastErr error
}

func NewRegistry(paths Paths, opts Options, observer Observer) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Registry{
		paths:    paths,
		opts:     opts,
		observer: observer,
		logger:   opts.Logger,
		debounce: 250 * time.Millisecond,
		lastErr:  ErrNotLoaded,
	}
}

func (r *Registry) Paths() Paths { return r.paths }

// Reload loads both artifacts and swaps them in on success.
func (r *Registry) Reload() error {
	p, err := Load(r.paths, r.opts)

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		r.observer.RecordReload("", "", nil, err)
		r.logger.Error("artifact load failed", zap.Error(err))
		return err
	}
	r.current.Store(p)
	b := p.Bundle()
	r.observer.RecordReload(b.Version(), b.Meta.ModelType, b.Scores(), nil)
	r.logger.Info("artifacts loaded",
		zap.String("model", r.paths.Model),
		zap.String("encoders", r.paths.Encoders),
		zap.String("version", b.Version()),
		zap.Strings("classes", b.ClassLabels()),
	)
	return nil
}

// Current returns the serving predictor. Before any successful load it
// returns the last load error.
func (r *Registry) Current() (*Predictor, error) {
	if p := r.current.Load(); p != nil {
		return p, nil
	}
	return nil, r.LastError()
}

// LastError is the result of the most recent load attempt.
func (r *Registry) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Watch reloads whenever either artifact file is written or replaced, until
// ctx is done. Bursts of events are coalesced.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	targets := map[string]bool{
		filepath.Clean(r.paths.Model):    true,
		filepath.Clean(r.paths.Encoders): true,
	}
	dirs := map[string]bool{}
	for path := range targets {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}
	r.logger.Info("watching artifacts", zap.Int("dirs", len(dirs)))

	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.logger.Debug("artifact changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.debounce)
		case <-timer.C:
			_ = r.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}
