package chat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CampusChat/internal/api"
	"CampusChat/internal/cache"
	"CampusChat/internal/config"
	"CampusChat/internal/session"
	"CampusChat/internal/status"
)

type fakeDispatcher struct {
	chatFn   func(ctx context.Context, question, sessionID string) (*api.ChatResponse, error)
	searchFn func(ctx context.Context, query string, k int) (*api.SearchResponse, error)
	healthFn func(ctx context.Context) (*api.HealthResponse, error)

	chatCalls   atomic.Int32
	searchCalls atomic.Int32
}

func (f *fakeDispatcher) Chat(ctx context.Context, question, sessionID string) (*api.ChatResponse, error) {
	f.chatCalls.Add(1)
	if f.chatFn == nil {
		return &api.ChatResponse{Answer: "stub answer"}, nil
	}
	return f.chatFn(ctx, question, sessionID)
}

func (f *fakeDispatcher) Search(ctx context.Context, query string, k int) (*api.SearchResponse, error) {
	f.searchCalls.Add(1)
	if f.searchFn == nil {
		return &api.SearchResponse{}, nil
	}
	return f.searchFn(ctx, query, k)
}

func (f *fakeDispatcher) Health(ctx context.Context) (*api.HealthResponse, error) {
	if f.healthFn == nil {
		return &api.HealthResponse{}, nil
	}
	return f.healthFn(ctx)
}

// newTestController builds a started controller whose async completions
// signal on the returned channel.
func newTestController(t *testing.T, disp *fakeDispatcher) (*Controller, chan struct{}) {
	t.Helper()

	cfg := config.Default()
	cfg.PollInterval = config.Duration(time.Minute)
	cfg.SearchLimit = 5

	ctrl := New(cfg, disp, nil, nil)
	settled := make(chan struct{}, 16)
	ctrl.completed = func() { settled <- struct{}{} }

	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(func() { ctrl.Teardown() })
	return ctrl, settled
}

func waitSettled(t *testing.T, settled chan struct{}) {
	t.Helper()
	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestStartTwiceIsAnError(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeDispatcher{})
	require.ErrorIs(t, ctrl.Start(context.Background()), ErrAlreadyStarted)
}

func TestStartAppendsGreetingAndPollsStatus(t *testing.T) {
	disp := &fakeDispatcher{healthFn: func(ctx context.Context) (*api.HealthResponse, error) {
		return &api.HealthResponse{Features: map[string]string{"query_expansion": "enabled"}}, nil
	}}
	ctrl, _ := newTestController(t, disp)

	history := ctrl.History()
	require.Len(t, history, 1)
	require.Equal(t, session.RoleAssistant, history[0].Role)
	require.Equal(t, Greeting, history[0].Text)

	snap := ctrl.Status()
	require.True(t, snap.Reachable)
	require.Equal(t, status.ModeFull, snap.Mode)
}

func TestSessionIdentityIsStable(t *testing.T) {
	ctrl, settled := newTestController(t, &fakeDispatcher{})

	id := ctrl.Session().ID
	require.NotEmpty(t, id)

	require.NoError(t, ctrl.SubmitMessage(context.Background(), "hello"))
	waitSettled(t, settled)
	ctrl.ClearHistory()

	require.Equal(t, id, ctrl.Session().ID)
}

func TestEmptySubmissionsAreNoOps(t *testing.T) {
	disp := &fakeDispatcher{}
	ctrl, _ := newTestController(t, disp)

	for _, input := range []string{"", "   ", "\t\n"} {
		require.ErrorIs(t, ctrl.SubmitMessage(context.Background(), input), ErrEmptyInput)
		require.ErrorIs(t, ctrl.SubmitSearch(context.Background(), input), ErrEmptyInput)
	}

	require.Len(t, ctrl.History(), 1, "history must be untouched")
	require.Equal(t, int32(0), disp.chatCalls.Load())
	require.Equal(t, int32(0), disp.searchCalls.Load())
}

func TestUserTurnAppendedBeforeDispatchResolves(t *testing.T) {
	release := make(chan struct{})
	disp := &fakeDispatcher{chatFn: func(ctx context.Context, q, sid string) (*api.ChatResponse, error) {
		<-release
		return &api.ChatResponse{Answer: "done"}, nil
	}}
	ctrl, settled := newTestController(t, disp)

	require.NoError(t, ctrl.SubmitMessage(context.Background(), "pending question"))

	history := ctrl.History()
	require.Len(t, history, 2)
	require.Equal(t, session.RoleUser, history[1].Role)
	require.Equal(t, "pending question", history[1].Text)

	close(release)
	waitSettled(t, settled)

	history = ctrl.History()
	require.Len(t, history, 3)
	require.Equal(t, "done", history[2].Text)
}

func TestSuccessfulChatRecordsMetrics(t *testing.T) {
	ctrl, settled := newTestController(t, &fakeDispatcher{})

	require.NoError(t, ctrl.SubmitMessage(context.Background(), "hello"))
	waitSettled(t, settled)

	stats := ctrl.Stats()
	require.Equal(t, 1, stats.Messages)
	require.Equal(t, 1, stats.Samples)
	require.True(t, stats.HasLatency)
}

func TestFailedChatAppendsErrorTurnWithoutMetrics(t *testing.T) {
	disp := &fakeDispatcher{chatFn: func(ctx context.Context, q, sid string) (*api.ChatResponse, error) {
		return nil, &api.DispatchError{Kind: api.KindTimeout}
	}}
	ctrl, settled := newTestController(t, disp)

	require.NoError(t, ctrl.SubmitMessage(context.Background(), "hello"))
	waitSettled(t, settled)

	history := ctrl.History()
	require.Len(t, history, 3)
	require.Equal(t, session.RoleAssistant, history[2].Role)
	require.Equal(t, "timeout", history[2].Diagnostics["error_kind"])

	stats := ctrl.Stats()
	require.Equal(t, 0, stats.Messages)
	require.Equal(t, 0, stats.Samples, "failed requests must not pollute latency")
	require.False(t, stats.HasLatency)
}

func TestControllerUsableAfterRepeatedFailures(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	disp := &fakeDispatcher{chatFn: func(ctx context.Context, q, sid string) (*api.ChatResponse, error) {
		if fail.Load() {
			return nil, &api.DispatchError{Kind: api.KindNetworkUnreachable}
		}
		return &api.ChatResponse{Answer: "recovered"}, nil
	}}
	ctrl, settled := newTestController(t, disp)

	for i := 0; i < 3; i++ {
		require.NoError(t, ctrl.SubmitMessage(context.Background(), "hello"))
		waitSettled(t, settled)
	}

	fail.Store(false)
	require.NoError(t, ctrl.SubmitMessage(context.Background(), "hello again"))
	waitSettled(t, settled)

	history := ctrl.History()
	require.Equal(t, "recovered", history[len(history)-1].Text)
	require.Equal(t, 1, ctrl.Stats().Messages)
}

func TestSearchNoResults(t *testing.T) {
	ctrl, settled := newTestController(t, &fakeDispatcher{})

	require.NoError(t, ctrl.SubmitSearch(context.Background(), "tuition"))
	waitSettled(t, settled)

	history := ctrl.History()
	require.Equal(t, `No results for "tuition".`, history[len(history)-1].Text)
}

func TestSearchUsesConfiguredLimit(t *testing.T) {
	var gotK atomic.Int32
	disp := &fakeDispatcher{searchFn: func(ctx context.Context, q string, k int) (*api.SearchResponse, error) {
		gotK.Store(int32(k))
		return &api.SearchResponse{}, nil
	}}
	ctrl, settled := newTestController(t, disp)

	require.NoError(t, ctrl.SubmitSearch(context.Background(), "dorms"))
	waitSettled(t, settled)
	require.Equal(t, int32(5), gotK.Load())
}

func TestClearHistoryKeepsGreetingAndResetsMetrics(t *testing.T) {
	ctrl, settled := newTestController(t, &fakeDispatcher{})

	require.NoError(t, ctrl.SubmitMessage(context.Background(), "hello"))
	waitSettled(t, settled)
	require.Len(t, ctrl.History(), 3)

	ctrl.ClearHistory()

	history := ctrl.History()
	require.Len(t, history, 1)
	require.Equal(t, Greeting, history[0].Text)

	stats := ctrl.Stats()
	require.Equal(t, 0, stats.Messages)
	require.False(t, stats.HasLatency)
}

func TestClearHistoryDropsLateCompletions(t *testing.T) {
	release := make(chan struct{})
	disp := &fakeDispatcher{chatFn: func(ctx context.Context, q, sid string) (*api.ChatResponse, error) {
		<-release
		return &api.ChatResponse{Answer: "too late"}, nil
	}}
	ctrl, settled := newTestController(t, disp)

	require.NoError(t, ctrl.SubmitMessage(context.Background(), "slow question"))
	ctrl.ClearHistory()

	close(release)
	waitSettled(t, settled)

	history := ctrl.History()
	require.Len(t, history, 1, "stale completion must be discarded after a reset")
	require.Equal(t, Greeting, history[0].Text)
	require.Equal(t, 0, ctrl.Stats().Messages)
	require.Equal(t, 0, ctrl.Stats().Samples)
}

func TestClearHistoryPreservesStatusSnapshot(t *testing.T) {
	disp := &fakeDispatcher{healthFn: func(ctx context.Context) (*api.HealthResponse, error) {
		return &api.HealthResponse{Features: map[string]string{"reranking": "enabled"}}, nil
	}}
	ctrl, _ := newTestController(t, disp)

	before := ctrl.Status()
	ctrl.ClearHistory()
	after := ctrl.Status()

	require.Equal(t, before.Mode, after.Mode)
	require.Equal(t, before.Features, after.Features)
}

func TestConcurrentCompletionsAppendAtTail(t *testing.T) {
	releaseFirst := make(chan struct{})
	disp := &fakeDispatcher{chatFn: func(ctx context.Context, q, sid string) (*api.ChatResponse, error) {
		if q == "first" {
			<-releaseFirst
		}
		return &api.ChatResponse{Answer: "answer to " + q}, nil
	}}
	ctrl, settled := newTestController(t, disp)

	require.NoError(t, ctrl.SubmitMessage(context.Background(), "first"))
	require.NoError(t, ctrl.SubmitMessage(context.Background(), "second"))

	// The second dispatch wins the race; its answer lands first.
	waitSettled(t, settled)
	close(releaseFirst)
	waitSettled(t, settled)

	history := ctrl.History()
	require.Len(t, history, 5)
	require.Equal(t, "answer to second", history[3].Text)
	require.Equal(t, "answer to first", history[4].Text)
	require.Equal(t, 2, ctrl.Stats().Messages)
}

func TestAnswerCacheSkipsSecondDispatch(t *testing.T) {
	disp := &fakeDispatcher{chatFn: func(ctx context.Context, q, sid string) (*api.ChatResponse, error) {
		return &api.ChatResponse{Answer: "cached answer"}, nil
	}}

	cfg := config.Default()
	cfg.PollInterval = config.Duration(time.Minute)
	ctrl := New(cfg, disp, nil, nil)
	ctrl.SetAnswerCache(cache.New(time.Minute))
	settled := make(chan struct{}, 16)
	ctrl.completed = func() { settled <- struct{}{} }
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(func() { ctrl.Teardown() })

	require.NoError(t, ctrl.SubmitMessage(context.Background(), "repeat me"))
	waitSettled(t, settled)
	require.NoError(t, ctrl.SubmitMessage(context.Background(), "repeat me"))
	waitSettled(t, settled)

	require.Equal(t, int32(1), disp.chatCalls.Load())
	require.Equal(t, 2, ctrl.Stats().Messages)
	require.Equal(t, 1, ctrl.Stats().Samples, "cache hits record no latency sample")

	history := ctrl.History()
	require.Equal(t, "cached answer", history[len(history)-1].Text)
}

func TestSubmitBeforeStart(t *testing.T) {
	cfg := config.Default()
	ctrl := New(cfg, &fakeDispatcher{}, nil, nil)

	require.ErrorIs(t, ctrl.SubmitMessage(context.Background(), "hello"), ErrNotStarted)
	require.ErrorIs(t, ctrl.SubmitSearch(context.Background(), "hello"), ErrNotStarted)
}
