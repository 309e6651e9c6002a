package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"secure-llm-assistant/errs"
)

// ModelState is the lifecycle state of one model.
type ModelState string

const (
	StateNotDownloaded ModelState = "NotDownloaded"
	StateDownloading   ModelState = "Downloading"
	StateReady         ModelState = "Ready"
	StateError         ModelState = "Error"
)

// ModelDescriptor describes one model in the registry.
type ModelDescriptor struct {
	Name  string     `json:"name"`
	State ModelState `json:"state"`
}

// DownloadResult reports the terminal outcome of one download task.
type DownloadResult struct {
	Name  string
	State ModelState
	Err   error
}

// Logger is the logging dependency of the registry.
type Logger interface {
	Info(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Registry tracks per-model download state and the single selected
// model. Each model has an independent state machine, so downloads of
// distinct models may run concurrently; a failure only touches its own
// entry. All transitions happen under one mutex, so no observer ever
// sees a half-updated selection.
type Registry struct {
	mu       sync.Mutex
	backend  Backend
	log      Logger
	models   map[string]*ModelDescriptor
	selected string
	results  chan DownloadResult
}

// NewRegistry creates a registry over the given backend.
func NewRegistry(backend Backend, log Logger) *Registry {
	return &Registry{
		backend: backend,
		log:     log,
		models:  make(map[string]*ModelDescriptor),
		results: make(chan DownloadResult, 16),
	}
}

// Results delivers download completions. The channel is buffered;
// consumers that fall behind lose nothing because state is also
// queryable via Get.
func (r *Registry) Results() <-chan DownloadResult {
	return r.results
}

// WaitFor blocks until the download of the named model completes or
// ctx expires. Results for other models drain through; downloads of
// distinct models can finish in any order, so a waiter must not take
// the first completion it sees.
func (r *Registry) WaitFor(ctx context.Context, name string) (DownloadResult, error) {
	for {
		select {
		case res := <-r.results:
			if res.Name == name {
				return res, nil
			}
		case <-ctx.Done():
			return DownloadResult{}, ctx.Err()
		}
	}
}

// Register adds a model in NotDownloaded state. Registering an
// existing name is a no-op so backend listings can be re-applied.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[name]; !ok {
		r.models[name] = &ModelDescriptor{Name: name, State: StateNotDownloaded}
	}
}

// Sync asks the backend which models are installed and marks them
// Ready. Models already tracked keep their state unless the backend
// now reports them installed.
func (r *Registry) Sync(ctx context.Context) error {
	names, err := r.backend.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync models: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		desc, ok := r.models[name]
		if !ok {
			desc = &ModelDescriptor{Name: name}
			r.models[name] = desc
		}
		if desc.State != StateDownloading {
			desc.State = StateReady
		}
	}
	return nil
}

// RequestDownload starts a background download task for the model.
// Valid only from NotDownloaded or Error; a failed download is retried
// by calling RequestDownload again. The task is cancelled through ctx
// and its outcome arrives on Results.
func (r *Registry) RequestDownload(ctx context.Context, name string) error {
	r.mu.Lock()
	desc, ok := r.models[name]
	if !ok {
		r.mu.Unlock()
		return errs.NotFound("model", name)
	}

	switch desc.State {
	case StateNotDownloaded, StateError:
		desc.State = StateDownloading
	case StateDownloading:
		r.mu.Unlock()
		return fmt.Errorf("model %q is already downloading", name)
	default:
		r.mu.Unlock()
		return fmt.Errorf("model %q is already %s", name, desc.State)
	}
	r.mu.Unlock()

	r.log.Info("downloading model %s", name)

	go func() {
		err := r.backend.PullModel(ctx, name)

		r.mu.Lock()
		result := DownloadResult{Name: name}
		if err != nil {
			desc.State = StateError
			result.State = StateError
			result.Err = errs.DownloadError(name, err)
			r.log.Error("download of model %s failed: %v", name, err)
		} else {
			desc.State = StateReady
			result.State = StateReady
			r.log.Info("model %s is ready", name)
		}
		r.mu.Unlock()

		select {
		case r.results <- result:
		default:
		}
	}()

	return nil
}

// Select makes the named model the active one. Fails with
// ModelNotReady unless the model's state is Ready; the previous
// selection is retained on failure.
func (r *Registry) Select(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, ok := r.models[name]
	if !ok {
		return errs.NotFound("model", name)
	}
	if desc.State != StateReady {
		return errs.ModelNotReady(name, string(desc.State))
	}

	r.selected = name
	return nil
}

// Selected returns the active model name, or "" before any selection.
func (r *Registry) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// SelectedReady returns the active model name if it is Ready for
// inference right now, or an error otherwise. Dispatch goes through
// this so a selection can never hand out a non-Ready model.
func (r *Registry) SelectedReady() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.selected == "" {
		return "", errs.ModelNotReady("", "unselected")
	}
	desc := r.models[r.selected]
	if desc == nil || desc.State != StateReady {
		state := "unknown"
		if desc != nil {
			state = string(desc.State)
		}
		return "", errs.ModelNotReady(r.selected, state)
	}
	return r.selected, nil
}

// Get returns a copy of one model's descriptor.
func (r *Registry) Get(name string) (ModelDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, ok := r.models[name]
	if !ok {
		return ModelDescriptor{}, errs.NotFound("model", name)
	}
	return *desc, nil
}

// List returns descriptors for every tracked model, sorted by name.
func (r *Registry) List() []ModelDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ModelDescriptor, 0, len(r.models))
	for _, desc := range r.models {
		out = append(out, *desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
