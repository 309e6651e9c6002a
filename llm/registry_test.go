package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-llm-assistant/errs"
)

type testLogger struct{}

func (testLogger) Info(format string, v ...interface{})  {}
func (testLogger) Error(format string, v ...interface{}) {}

// fakeBackend lets tests script pull outcomes per model.
type fakeBackend struct {
	mu        sync.Mutex
	pullErrs  map[string]error
	installed []string
	pulls     int
}

func (f *fakeBackend) Chat(ctx context.Context, messages []Message, model string) (string, error) {
	return "ok", nil
}

func (f *fakeBackend) ProcessDocument(ctx context.Context, filePath, fileType string) (string, error) {
	return "", errors.New("unsupported")
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.installed...), nil
}

func (f *fakeBackend) PullModel(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if err, ok := f.pullErrs[name]; ok && err != nil {
		return err
	}
	return nil
}

func (f *fakeBackend) Name() string { return "fake" }

func waitForState(t *testing.T, r *Registry, name string, want ModelState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		desc, err := r.Get(name)
		require.NoError(t, err)
		if desc.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	desc, _ := r.Get(name)
	t.Fatalf("model %s stuck in %s, want %s", name, desc.State, want)
}

func TestRegistry_DownloadLifecycle(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRegistry(backend, testLogger{})
	r.Register("llama2-7b")

	desc, err := r.Get("llama2-7b")
	require.NoError(t, err)
	assert.Equal(t, StateNotDownloaded, desc.State)

	require.NoError(t, r.RequestDownload(context.Background(), "llama2-7b"))
	waitForState(t, r, "llama2-7b", StateReady)

	result := <-r.Results()
	assert.Equal(t, "llama2-7b", result.Name)
	assert.Equal(t, StateReady, result.State)
	assert.NoError(t, result.Err)
}

func TestRegistry_DownloadFailureIsRetryable(t *testing.T) {
	backend := &fakeBackend{pullErrs: map[string]error{
		"mistral-7b": errors.New("connection refused"),
	}}
	r := NewRegistry(backend, testLogger{})
	r.Register("mistral-7b")

	require.NoError(t, r.RequestDownload(context.Background(), "mistral-7b"))
	waitForState(t, r, "mistral-7b", StateError)

	result := <-r.Results()
	assert.Equal(t, StateError, result.State)
	assert.Equal(t, errs.KindDownloadError, errs.KindOf(result.Err))

	// Clear the scripted failure and retry with a second request.
	backend.mu.Lock()
	delete(backend.pullErrs, "mistral-7b")
	backend.mu.Unlock()

	require.NoError(t, r.RequestDownload(context.Background(), "mistral-7b"))
	waitForState(t, r, "mistral-7b", StateReady)
}

func TestRegistry_DownloadInvalidFromDownloading(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRegistry(backend, testLogger{})
	r.Register("phi-2")

	// Force the state by hand to avoid racing the fake pull.
	r.mu.Lock()
	r.models["phi-2"].State = StateDownloading
	r.mu.Unlock()

	assert.Error(t, r.RequestDownload(context.Background(), "phi-2"))
}

func TestRegistry_DownloadUnknownModel(t *testing.T) {
	r := NewRegistry(&fakeBackend{}, testLogger{})
	err := r.RequestDownload(context.Background(), "ghost")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestRegistry_SelectRequiresReady(t *testing.T) {
	backend := &fakeBackend{installed: []string{"llama2-7b"}}
	r := NewRegistry(backend, testLogger{})
	r.Register("phi-2")
	require.NoError(t, r.Sync(context.Background()))

	require.NoError(t, r.Select("llama2-7b"))
	assert.Equal(t, "llama2-7b", r.Selected())

	// Selecting a NotDownloaded model fails and keeps the previous
	// selection untouched.
	err := r.Select("phi-2")
	assert.Equal(t, errs.KindModelNotReady, errs.KindOf(err))
	assert.Equal(t, "llama2-7b", r.Selected())

	err = r.Select("ghost")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	assert.Equal(t, "llama2-7b", r.Selected())
}

func TestRegistry_SelectedReady(t *testing.T) {
	backend := &fakeBackend{installed: []string{"llama2-7b"}}
	r := NewRegistry(backend, testLogger{})

	_, err := r.SelectedReady()
	assert.Equal(t, errs.KindModelNotReady, errs.KindOf(err))

	require.NoError(t, r.Sync(context.Background()))
	require.NoError(t, r.Select("llama2-7b"))

	name, err := r.SelectedReady()
	require.NoError(t, err)
	assert.Equal(t, "llama2-7b", name)
}

func TestRegistry_ConcurrentDownloadsIsolated(t *testing.T) {
	backend := &fakeBackend{pullErrs: map[string]error{
		"bad-model": errors.New("checksum mismatch"),
	}}
	r := NewRegistry(backend, testLogger{})
	r.Register("good-model")
	r.Register("bad-model")

	require.NoError(t, r.RequestDownload(context.Background(), "good-model"))
	require.NoError(t, r.RequestDownload(context.Background(), "bad-model"))

	waitForState(t, r, "good-model", StateReady)
	waitForState(t, r, "bad-model", StateError)
}

func TestRegistry_WaitForSkipsOtherCompletions(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRegistry(backend, testLogger{})
	r.Register("phi-2")

	// A completion for another model is already queued; a waiter on
	// phi-2 must drain past it rather than misattribute it.
	r.results <- DownloadResult{Name: "llama2-7b", State: StateReady}

	require.NoError(t, r.RequestDownload(context.Background(), "phi-2"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := r.WaitFor(ctx, "phi-2")
	require.NoError(t, err)
	assert.Equal(t, "phi-2", res.Name)
	assert.Equal(t, StateReady, res.State)
}

func TestRegistry_WaitForHonorsContext(t *testing.T) {
	r := NewRegistry(&fakeBackend{}, testLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.WaitFor(ctx, "never-finishes")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
