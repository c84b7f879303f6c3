package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"forge/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStart_ReturnsInitiatedSnapshot(t *testing.T) {
	fp := &fakeProviders{}
	d := &manualDispatcher{}
	o := newTestOrchestrator(t, fp, nil, WithDispatcher(d))

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, StatusInitiated, p.Status)
	assert.Equal(t, "iron-sword", p.Request.AssetID)
	assert.Equal(t, QualityBalanced, p.Request.Quality)
	require.Len(t, p.Stages, 4)
	for _, s := range p.Stages {
		assert.Equal(t, StageIdle, s.Status)
	}
	assert.True(t, p.Stage(StagePostProcessing).Optional)
	assert.Equal(t, []string{p.ID}, d.ids)

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInitiated, got.Status)
	assert.Equal(t, int32(0), fp.optimizeCalls.Load())
}

func TestRun_ExampleScenario(t *testing.T) {
	fp := &fakeProviders{}
	o := newTestOrchestrator(t, fp, nil)

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress())
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Error)

	assert.Equal(t, StageCompleted, got.Stage(StagePromptOptimization).Status)
	assert.Equal(t, StageCompleted, got.Stage(StageImageGeneration).Status)
	assert.Equal(t, StageCompleted, got.Stage(StageModelConversion).Status)
	assert.Equal(t, StageSkipped, got.Stage(StagePostProcessing).Status)

	prefix := "https://cdn.test/assets/iron-sword/" + p.ID + "/"
	assert.Equal(t, prefix+"concept.png", got.Results[ResultImageURL])
	assert.Equal(t, prefix+"model.glb", got.Results[ResultModelURL])
	assert.Equal(t, got.Results[ResultModelURL], got.Results[ResultAssetURL])
	assert.Equal(t, "iron-sword", got.Results[ResultAssetID])
	assert.Contains(t, got.Results[ResultOptimizedPrompt], "bronze sword")
	assert.Equal(t, int32(0), fp.processCalls.Load())
}

func TestRun_MinimalRequest(t *testing.T) {
	fp := &fakeProviders{}
	o := newTestOrchestrator(t, fp, nil)

	p, err := o.Start(context.Background(), GenerationRequest{
		Description: "A simple bronze sword",
		Name:        "Test Sword",
		Quality:     QualityBalanced,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInitiated, p.Status)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, StageSkipped, got.Stage(StagePostProcessing).Status)
	assert.Equal(t, "test-sword", got.Results[ResultAssetID])
	assert.Equal(t, "https://cdn.test/assets/test-sword/"+p.ID+"/model.glb", got.Results[ResultAssetURL])
}

func TestRun_PostProcessingProducesAsset(t *testing.T) {
	fp := &fakeProviders{}
	o := newTestOrchestrator(t, fp, nil)

	req := swordRequest()
	req.PostProcess = &PostProcessOptions{Enabled: true, TexturePrompt: "weathered bronze"}
	p, err := o.Start(context.Background(), req)
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, StageCompleted, got.Stage(StagePostProcessing).Status)
	assert.Equal(t, got.Results[ResultProcessedModelURL], got.Results[ResultAssetURL])
	assert.Contains(t, got.Results[ResultAssetURL], "model-processed.glb")
	assert.Equal(t, int32(1), fp.processCalls.Load())
}

func TestRun_PostProcessingWithoutProcessorFails(t *testing.T) {
	fp := &fakeProviders{}
	set := fp.set()
	set.Post = nil
	o := NewOrchestrator(NewMemoryStore(), DefaultStages(set, testPolicies()), zap.NewNop())

	req := swordRequest()
	req.PostProcess = &PostProcessOptions{Enabled: true}
	p, err := o.Start(context.Background(), req)
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, KindRejected, got.Error.Kind)
	assert.Equal(t, StagePostProcessing, got.Error.Stage)
	assert.Equal(t, StageFailed, got.Stage(StagePostProcessing).Status)
	assert.NotEmpty(t, got.Results[ResultModelURL])
}

func TestStart_InvalidRequestCreatesNothing(t *testing.T) {
	store := NewMemoryStore()
	d := &manualDispatcher{}
	o := newTestOrchestrator(t, &fakeProviders{}, store, WithDispatcher(d))

	cases := []GenerationRequest{
		{},
		{Description: "   ", Name: "Sword", Type: "weapon"},
		{Description: "a sword", Name: "Sword", Type: "weapon", Quality: "ultra"},
		{Description: "a sword", Name: "Sword", Type: "weapon", AssetID: "Not Valid!"},
	}
	for _, req := range cases {
		_, err := o.Start(context.Background(), req)
		assert.ErrorIs(t, err, ErrValidation)
	}

	all, err := store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, d.ids)
}

func TestStart_StoreFailure(t *testing.T) {
	store := &brokenStore{Store: NewMemoryStore(), failCreate: true}
	o := newTestOrchestrator(t, &fakeProviders{}, store, WithDispatcher(&manualDispatcher{}))

	_, err := o.Start(context.Background(), swordRequest())
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestStart_DispatchFailureMarksPipelineFailed(t *testing.T) {
	store := NewMemoryStore()
	o := newTestOrchestrator(t, &fakeProviders{}, store, WithDispatcher(&manualDispatcher{err: errors.New("queue down")}))

	_, err := o.Start(context.Background(), swordRequest())
	assert.ErrorIs(t, err, ErrInitialization)

	all, err := store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, StatusFailed, all[0].Status)
	assert.Equal(t, KindDispatch, all[0].Error.Kind)
}

func TestStatus_UnknownID(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProviders{}, nil)
	_, err := o.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatus_StoreUnreachable(t *testing.T) {
	store := &brokenStore{Store: NewMemoryStore(), failGet: true}
	o := newTestOrchestrator(t, &fakeProviders{}, store)
	_, err := o.Status(context.Background(), "any")
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStatus_IdempotentReads(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProviders{}, nil)
	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	o.Wait()

	first, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	second, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_FailFastOnRejection(t *testing.T) {
	fp := &fakeProviders{
		generate: func(ctx context.Context, n int32) (provider.Image, error) {
			return provider.Image{}, provider.Rejected("fake", errors.New("content policy"))
		},
	}
	o := newTestOrchestrator(t, fp, nil)

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, StageImageGeneration, got.Error.Stage)
	assert.Equal(t, KindRejected, got.Error.Kind)
	assert.Equal(t, "image-generation: provider rejected the request", got.Error.Message)
	assert.NotContains(t, got.Error.Message, "content policy")

	assert.Equal(t, StageFailed, got.Stage(StageImageGeneration).Status)
	assert.Equal(t, 1, got.Stage(StageImageGeneration).Attempts)
	assert.Equal(t, StageIdle, got.Stage(StageModelConversion).Status)
	assert.Equal(t, StageIdle, got.Stage(StagePostProcessing).Status)
	assert.Equal(t, int32(1), fp.generateCalls.Load())
	assert.Equal(t, int32(0), fp.submitCalls.Load())
	assert.NotContains(t, got.Results, ResultAssetURL)
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	fp := &fakeProviders{
		generate: func(ctx context.Context, n int32) (provider.Image, error) {
			if n < 3 {
				return provider.Image{}, provider.FromStatus("fake", 503, nil)
			}
			return provider.Image{URL: "https://provider/image.png"}, nil
		},
	}
	o := newTestOrchestrator(t, fp, nil)

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 3, got.Stage(StageImageGeneration).Attempts)
}

func TestRun_RetriesExhausted(t *testing.T) {
	fp := &fakeProviders{
		optimize: func(ctx context.Context, n int32) (string, error) {
			return "", provider.FromStatus("fake", 429, nil)
		},
	}
	o := newTestOrchestrator(t, fp, nil)

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, KindProvider, got.Error.Kind)
	assert.Equal(t, StagePromptOptimization, got.Error.Stage)
	assert.Equal(t, int32(3), fp.optimizeCalls.Load())
	assert.Equal(t, 3, got.Stage(StagePromptOptimization).Attempts)
	assert.Equal(t, int32(0), fp.generateCalls.Load())
}

func TestRun_StageTimeout(t *testing.T) {
	fp := &fakeProviders{
		wait: func(ctx context.Context, n int32, progress provider.ProgressFunc) (string, error) {
			progress(30)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	policies := testPolicies()
	conv := policies[StageModelConversion]
	conv.Timeout = 50 * time.Millisecond
	policies[StageModelConversion] = conv
	o := NewOrchestrator(NewMemoryStore(), DefaultStages(fp.set(), policies), zap.NewNop())

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, KindTimeout, got.Error.Kind)
	assert.Equal(t, StageModelConversion, got.Error.Stage)
	// conversion progress is scaled to leave room for publishing
	assert.Equal(t, 27, got.Stage(StageModelConversion).Progress)
	assert.Equal(t, int32(1), fp.waitCalls.Load())
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	fp := &fakeProviders{
		wait: func(ctx context.Context, n int32, progress provider.ProgressFunc) (string, error) {
			for _, pct := range []int{10, 40, 20, 80, 100} {
				progress(pct)
			}
			return "https://provider/model.glb", nil
		},
	}
	rn := &recordingNotifier{}
	o := newTestOrchestrator(t, fp, nil, WithNotifier(rn))

	req := swordRequest()
	req.PostProcess = &PostProcessOptions{Enabled: true}
	_, err := o.Start(context.Background(), req)
	require.NoError(t, err)
	o.Wait()

	events := rn.snapshot()
	require.NotEmpty(t, events)
	last := -1
	rank := map[Status]int{StatusInitiated: 0, StatusProcessing: 1, StatusCompleted: 2, StatusFailed: 2}
	lastRank := 0
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Progress, last)
		assert.GreaterOrEqual(t, rank[e.Status], lastRank)
		last, lastRank = e.Progress, rank[e.Status]
	}
	final := events[len(events)-1]
	assert.Equal(t, EventPipeline, final.Type)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
}

func TestRun_TerminalPipelineIsUntouched(t *testing.T) {
	fp := &fakeProviders{}
	d := &manualDispatcher{}
	o := newTestOrchestrator(t, fp, nil, WithDispatcher(d))

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), p.ID))
	done, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)

	require.NoError(t, o.Run(context.Background(), p.ID))
	again, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, done, again)
	assert.Equal(t, int32(1), fp.optimizeCalls.Load())

	_, err = o.rec.update(context.Background(), p.ID, func(p *Pipeline) error {
		p.Results["extra"] = "x"
		return nil
	})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRun_ResumesInterruptedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fp := &fakeProviders{
		wait: func(c context.Context, n int32, progress provider.ProgressFunc) (string, error) {
			if n == 1 {
				cancel()
				<-c.Done()
				return "", c.Err()
			}
			return "https://provider/model.glb", nil
		},
	}
	d := &manualDispatcher{}
	o := newTestOrchestrator(t, fp, nil, WithDispatcher(d))

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)

	err = o.Run(ctx, p.ID)
	assert.ErrorIs(t, err, context.Canceled)
	mid, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, mid.Status)
	assert.Equal(t, StageActive, mid.Stage(StageModelConversion).Status)

	require.NoError(t, o.Run(context.Background(), p.ID))
	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, int32(1), fp.optimizeCalls.Load())
	assert.Equal(t, int32(1), fp.generateCalls.Load())
	assert.Equal(t, 2, got.Stage(StageModelConversion).Attempts)
}

func TestRun_IntegrityFailure(t *testing.T) {
	fp := &fakeProviders{
		optimize: func(ctx context.Context, n int32) (string, error) {
			return "  ", nil
		},
	}
	o := newTestOrchestrator(t, fp, nil)

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, KindIntegrity, got.Error.Kind)
	assert.Equal(t, StagePromptOptimization, got.Error.Stage)
	assert.Equal(t, StageCompleted, got.Stage(StageModelConversion).Status)
	assert.NotContains(t, got.Results, ResultAssetURL)
}

func TestRun_StorageFailureMidRun(t *testing.T) {
	store := &brokenStore{Store: NewMemoryStore()}
	fp := &fakeProviders{}
	fp.generate = func(ctx context.Context, n int32) (provider.Image, error) {
		store.failUpdate.Store(true)
		return provider.Image{URL: "https://provider/image.png"}, nil
	}
	d := &manualDispatcher{}
	o := newTestOrchestrator(t, fp, store, WithDispatcher(d))

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)

	err = o.Run(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrStorage)

	store.failUpdate.Store(false)
	mid, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, mid.Status)
	assert.Equal(t, StageActive, mid.Stage(StageImageGeneration).Status)
}

func TestRun_FailureWriteLostRecordsStorageCause(t *testing.T) {
	store := &brokenStore{Store: NewMemoryStore()}
	fp := &fakeProviders{}
	fp.generate = func(ctx context.Context, n int32) (provider.Image, error) {
		store.failNextUpdate.Store(true)
		return provider.Image{}, provider.Rejected("fake", errors.New("content policy"))
	}
	o := newTestOrchestrator(t, fp, store, WithDispatcher(&manualDispatcher{}))

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), p.ID))

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, KindStorage, got.Error.Kind)
	assert.Equal(t, StageImageGeneration, got.Error.Stage)
	assert.Equal(t, "image-generation: pipeline state could not be saved", got.Error.Message)
	assert.Equal(t, StageFailed, got.Stage(StageImageGeneration).Status)
	assert.Equal(t, int32(1), fp.generateCalls.Load())
}

func TestRun_NotifierPanicDoesNotBreakRun(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProviders{}, nil, WithNotifier(NotifierFunc(func(Event) {
		panic("sink exploded")
	})))

	p, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	o.Wait()

	got, err := o.Status(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestList_FiltersByUser(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProviders{}, nil, WithDispatcher(&manualDispatcher{}))

	for _, user := range []string{"alice", "bob", "alice"} {
		req := swordRequest()
		req.UserID = user
		_, err := o.Start(context.Background(), req)
		require.NoError(t, err)
	}

	mine, err := o.List(context.Background(), ListFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, p := range mine {
		assert.Equal(t, "alice", p.UserID)
	}

	limited, err := o.List(context.Background(), ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSweepStale_FailsOnlyStuckPipelines(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	o := newTestOrchestrator(t, &fakeProviders{}, nil, WithDispatcher(&manualDispatcher{}), WithClock(clock))

	stuck, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)
	_, err = o.rec.update(context.Background(), stuck.ID, func(p *Pipeline) error {
		p.Status = StatusProcessing
		p.Stages[0].Status = StageActive
		return nil
	})
	require.NoError(t, err)

	queued, err := o.Start(context.Background(), swordRequest())
	require.NoError(t, err)

	now = now.Add(time.Hour)
	n, err := o.SweepStale(context.Background(), now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := o.Status(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, KindStale, got.Error.Kind)
	assert.Equal(t, StagePromptOptimization, got.Error.Stage)
	assert.Equal(t, StageFailed, got.Stages[0].Status)

	untouched, err := o.Status(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInitiated, untouched.Status)

	n, err = o.SweepStale(context.Background(), now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}
