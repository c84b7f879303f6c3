package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"forge/internal/provider"

	"go.uber.org/zap"
)

// fakeProviders answers every provider call instantly unless a hook is set.
type fakeProviders struct {
	optimizeCalls atomic.Int32
	generateCalls atomic.Int32
	submitCalls   atomic.Int32
	waitCalls     atomic.Int32
	processCalls  atomic.Int32

	optimize func(ctx context.Context, n int32) (string, error)
	generate func(ctx context.Context, n int32) (provider.Image, error)
	wait     func(ctx context.Context, n int32, progress provider.ProgressFunc) (string, error)
	process  func(ctx context.Context, n int32) (provider.Model, error)
}

func (f *fakeProviders) Optimize(ctx context.Context, req provider.PromptRequest) (string, error) {
	n := f.optimizeCalls.Add(1)
	if f.optimize != nil {
		return f.optimize(ctx, n)
	}
	return "a " + req.Description + ", centered, studio lighting", nil
}

func (f *fakeProviders) Generate(ctx context.Context, req provider.ImageRequest) (provider.Image, error) {
	n := f.generateCalls.Add(1)
	if f.generate != nil {
		return f.generate(ctx, n)
	}
	return provider.Image{URL: "https://provider/image.png", ContentType: "image/png"}, nil
}

func (f *fakeProviders) Submit(ctx context.Context, req provider.ConvertRequest) (string, error) {
	f.submitCalls.Add(1)
	return "task-1", nil
}

func (f *fakeProviders) Wait(ctx context.Context, taskID string, progress provider.ProgressFunc) (string, error) {
	n := f.waitCalls.Add(1)
	if f.wait != nil {
		return f.wait(ctx, n, progress)
	}
	progress(50)
	return "https://provider/model.glb", nil
}

func (f *fakeProviders) Process(ctx context.Context, req provider.PostProcessRequest, progress provider.ProgressFunc) (provider.Model, error) {
	n := f.processCalls.Add(1)
	if f.process != nil {
		return f.process(ctx, n)
	}
	return provider.Model{Data: []byte("glb"), ContentType: "model/gltf-binary"}, nil
}

// fakePublisher hosts everything under a fixed CDN prefix.
type fakePublisher struct{}

func (fakePublisher) Publish(_ context.Context, a provider.Artifact) (string, error) {
	return "https://cdn.test/" + a.Key, nil
}

func (f *fakeProviders) set() provider.Set {
	return provider.Set{Prompt: f, Image: f, Converter: f, Post: f, Publisher: fakePublisher{}}
}

func testPolicies() map[string]Policy {
	p := Policy{Timeout: 2 * time.Second, MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	return map[string]Policy{
		StagePromptOptimization: p,
		StageImageGeneration:    p,
		StageModelConversion:    p,
		StagePostProcessing:     p,
	}
}

func newTestOrchestrator(t *testing.T, fp *fakeProviders, store Store, opts ...Option) *Orchestrator {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}
	return NewOrchestrator(store, DefaultStages(fp.set(), testPolicies()), zap.NewNop(), opts...)
}

func swordRequest() GenerationRequest {
	return GenerationRequest{
		Description: "a bronze sword with a leather grip",
		Name:        "Iron Sword",
		Type:        "weapon",
		Subtype:     "sword",
	}
}

// recordingNotifier keeps every event it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// manualDispatcher records dispatches without running anything.
type manualDispatcher struct {
	err error
	ids []string
}

func (d *manualDispatcher) Dispatch(_ context.Context, id string) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

// brokenStore fails selected operations with a storage error.
type brokenStore struct {
	Store
	failCreate bool
	failUpdate atomic.Bool
	failGet    bool

	// fails only the next Update, then recovers
	failNextUpdate atomic.Bool
}

var errDisk = errors.New("disk unavailable")

func (b *brokenStore) Create(ctx context.Context, p *Pipeline) error {
	if b.failCreate {
		return errors.Join(ErrStorage, errDisk)
	}
	return b.Store.Create(ctx, p)
}

func (b *brokenStore) Get(ctx context.Context, id string) (*Pipeline, error) {
	if b.failGet {
		return nil, errors.Join(ErrStorage, errDisk)
	}
	return b.Store.Get(ctx, id)
}

func (b *brokenStore) Update(ctx context.Context, id string, mutate func(*Pipeline) error) (*Pipeline, error) {
	if b.failUpdate.Load() || b.failNextUpdate.CompareAndSwap(true, false) {
		return nil, errors.Join(ErrStorage, errDisk)
	}
	return b.Store.Update(ctx, id, mutate)
}
