package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/tools"

	"github.com/uselocalchat/localchat/chat"
	"github.com/uselocalchat/localchat/plugin/engine"
)

// fakeSync records backend calls and lets tests wait for the detached
// persistence goroutines to land.
type fakeSync struct {
	mu       sync.Mutex
	records  map[string]*chat.Record
	appended []chat.Message
	created  []string
	titles   []string

	getErr    error
	createErr error
	appendErr error

	activity chan string
}

func newFakeSync() *fakeSync {
	return &fakeSync{
		records:  map[string]*chat.Record{},
		activity: make(chan string, 16),
	}
}

func (f *fakeSync) GetChat(_ context.Context, id string) (*chat.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.records[id], nil
}

func (f *fakeSync) CreateChat(_ context.Context, id, userID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		f.activity <- "create-failed"
		return f.createErr
	}
	f.records[id] = &chat.Record{ID: id, UserID: userID, Title: title}
	f.created = append(f.created, id)
	f.titles = append(f.titles, title)
	f.activity <- "create"
	return nil
}

func (f *fakeSync) AppendMessages(_ context.Context, messages []chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		f.activity <- "append-failed"
		return f.appendErr
	}
	f.appended = append(f.appended, messages...)
	f.activity <- "append"
	return nil
}

func (f *fakeSync) await(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-f.activity:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

type sseFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame sseFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func postTurn(t *testing.T, w *Worker, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.POST("/api/chat", w.handleChatTurn)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func activatedWorker(t *testing.T, provider EngineProvider, sync SyncClient, registry map[string]tools.Tool) *Worker {
	t.Helper()
	w := startWorker(t, Options{
		Probe:        func(context.Context) bool { return false },
		Engines:      provider,
		Sync:         sync,
		Tools:        registry,
		DefaultModel: "llama3.2:1b",
	})
	ctx := context.Background()
	require.NoError(t, w.Install(ctx))
	require.NoError(t, w.Activate(ctx))
	return w
}

func TestChatTurnStreamsTokens(t *testing.T) {
	sync := newFakeSync()
	sync.records["c1"] = &chat.Record{ID: "c1", UserID: "u1", Title: "Existing"}
	provider := &fakeProvider{session: &fakeSession{tokens: []string{"Hel", "lo"}}}
	w := activatedWorker(t, provider, sync, nil)

	rec := postTurn(t, w, `{"id":"c1","userId":"u1","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := parseSSE(t, rec.Body.String())
	require.Equal(t, []sseFrame{
		{Type: "token", Content: "Hel"},
		{Type: "token", Content: "lo"},
		{Type: "done", Content: "c1"},
	}, frames)

	// The existing chat only gets the user message persisted.
	sync.await(t, "append")
	sync.mu.Lock()
	defer sync.mu.Unlock()
	require.Empty(t, sync.created)
	require.Len(t, sync.appended, 1)
	require.Equal(t, chat.RoleUser, sync.appended[0].Role)
	require.Equal(t, "c1", sync.appended[0].ChatID)
	require.NotEmpty(t, sync.appended[0].ID)
	require.False(t, sync.appended[0].CreatedAt.IsZero())
}

func TestChatTurnNewChatGetsTitleAndRecord(t *testing.T) {
	sync := newFakeSync()
	provider := &fakeProvider{session: &fakeSession{
		tokens: []string{"ok"},
		title:  `"Trip: planning"`,
	}}
	w := activatedWorker(t, provider, sync, nil)

	rec := postTurn(t, w, `{"id":"c2","userId":"u1","messages":[{"role":"user","content":"plan a trip"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	sync.await(t, "create")
	sync.await(t, "append")
	sync.mu.Lock()
	defer sync.mu.Unlock()
	require.Equal(t, []string{"c2"}, sync.created)
	require.Equal(t, []string{"Trip planning"}, sync.titles)
}

func TestChatTurnTitleFailureFallsBack(t *testing.T) {
	sync := newFakeSync()
	provider := &fakeProvider{session: &fakeSession{
		tokens:   []string{"ok"},
		titleErr: errors.New("boom"),
	}}
	w := activatedWorker(t, provider, sync, nil)

	postTurn(t, w, `{"id":"c3","userId":"u1","messages":[{"role":"user","content":"hi"}]}`)

	sync.await(t, "create")
	sync.mu.Lock()
	defer sync.mu.Unlock()
	require.Equal(t, []string{chat.DefaultTitle}, sync.titles)
}

func TestChatTurnPersistenceFailureDoesNotFailStream(t *testing.T) {
	sync := newFakeSync()
	sync.records["c4"] = &chat.Record{ID: "c4", UserID: "u1"}
	sync.appendErr = errors.New("backend down")
	provider := &fakeProvider{session: &fakeSession{tokens: []string{"fine"}}}
	w := activatedWorker(t, provider, sync, nil)

	rec := postTurn(t, w, `{"id":"c4","userId":"u1","messages":[{"role":"user","content":"hi"}]}`)

	frames := parseSSE(t, rec.Body.String())
	require.Equal(t, []sseFrame{
		{Type: "token", Content: "fine"},
		{Type: "done", Content: "c4"},
	}, frames)
	sync.await(t, "append-failed")
}

func TestChatTurnLookupFailureTreatedAsNew(t *testing.T) {
	sync := newFakeSync()
	sync.getErr = errors.New("backend down")
	provider := &fakeProvider{session: &fakeSession{tokens: []string{"ok"}, title: "T"}}
	w := activatedWorker(t, provider, sync, nil)

	rec := postTurn(t, w, `{"id":"c5","userId":"u1","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := parseSSE(t, rec.Body.String())
	require.Equal(t, "done", frames[len(frames)-1].Type)
}

func TestChatTurnEngineUnavailable(t *testing.T) {
	sync := newFakeSync()
	sync.records["c6"] = &chat.Record{ID: "c6", UserID: "u1"}
	provider := &fakeProvider{acquireErr: engine.ErrEngineUnavailable}
	w := activatedWorker(t, provider, sync, nil)

	rec := postTurn(t, w, `{"id":"c6","userId":"u1","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	frames := parseSSE(t, rec.Body.String())
	require.Equal(t, []sseFrame{
		{Type: "error", Content: "model could not be loaded"},
		{Type: "done", Content: "c6"},
	}, frames)
}

func TestChatTurnMidStreamFailure(t *testing.T) {
	sync := newFakeSync()
	sync.records["c7"] = &chat.Record{ID: "c7", UserID: "u1"}
	provider := &fakeProvider{session: &fakeSession{
		tokens:    []string{"par"},
		streamErr: engine.ErrGenerationFailed,
	}}
	w := activatedWorker(t, provider, sync, nil)

	rec := postTurn(t, w, `{"id":"c7","userId":"u1","messages":[{"role":"user","content":"hi"}]}`)

	frames := parseSSE(t, rec.Body.String())
	require.Equal(t, []sseFrame{
		{Type: "token", Content: "par"},
		{Type: "error", Content: "generation failed"},
		{Type: "done", Content: "c7"},
	}, frames)
}

// abortSession streams until the caller's context dies, then tries to push
// one more chunk to prove the handler drops it.
type abortSession struct {
	delivered chan struct{}
	exited    chan struct{}
}

func (s *abortSession) Stream(ctx context.Context, _ []chat.Message) (<-chan engine.Chunk, error) {
	ch := make(chan engine.Chunk)
	go func() {
		defer close(ch)
		defer close(s.exited)
		ch <- engine.Chunk{Content: "par"}
		// Receipt of the second chunk means the first frame is on the wire.
		ch <- engine.Chunk{Content: "tial"}
		close(s.delivered)
		<-ctx.Done()
		select {
		case ch <- engine.Chunk{Content: "late"}:
		case <-time.After(time.Second):
		}
	}()
	return ch, nil
}

func (s *abortSession) GenerateTitle(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

type sessionProvider struct {
	session EngineSession
}

func (p sessionProvider) Acquire(context.Context, string, engine.ProgressFunc) (EngineSession, error) {
	return p.session, nil
}

func TestChatTurnClientAbortStopsFrames(t *testing.T) {
	sync := newFakeSync()
	sync.records["c1"] = &chat.Record{ID: "c1", UserID: "u1", Title: "Existing"}
	session := &abortSession{
		delivered: make(chan struct{}),
		exited:    make(chan struct{}),
	}
	w := activatedWorker(t, sessionProvider{session: session}, sync, nil)

	e := echo.New()
	e.POST("/api/chat", w.handleChatTurn)
	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"id":"c1","userId":"u1","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	served := make(chan struct{})
	go func() {
		defer close(served)
		e.ServeHTTP(rec, req)
	}()

	select {
	case <-session.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never started")
	}
	cancel()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after abort")
	}
	select {
	case <-session.exited:
	case <-time.After(2 * time.Second):
		t.Fatal("stream goroutine leaked after abort")
	}

	frames := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, frames)
	require.Equal(t, sseFrame{Type: "token", Content: "par"}, frames[0])
	for _, frame := range frames {
		require.NotEqual(t, "done", frame.Type)
		require.NotEqual(t, "error", frame.Type)
		require.NotEqual(t, "late", frame.Content)
	}
}

func TestChatTurnNoUserMessageNeverTouchesEngine(t *testing.T) {
	sync := newFakeSync()
	provider := &fakeProvider{session: &fakeSession{}}
	w := activatedWorker(t, provider, sync, nil)

	rec := postTurn(t, w, `{"id":"c8","userId":"u1","messages":[{"role":"assistant","content":"hi"}]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, provider.acquiredModels())
}

func TestChatTurnBeforeActivation(t *testing.T) {
	w := startWorker(t, Options{})
	rec := postTurn(t, w, `{"id":"c9","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatTurnDefaultsModel(t *testing.T) {
	sync := newFakeSync()
	sync.records["c10"] = &chat.Record{ID: "c10", UserID: "u1"}
	provider := &fakeProvider{session: &fakeSession{tokens: []string{"x"}}}
	w := activatedWorker(t, provider, sync, nil)

	postTurn(t, w, `{"id":"c10","userId":"u1","messages":[{"role":"user","content":"hi"}]}`)
	sync.await(t, "append")
	require.Equal(t, []string{"llama3.2:1b"}, provider.acquiredModels())
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echoes its input back." }
func (echoTool) Call(_ context.Context, input string) (string, error) {
	return "echo:" + input, nil
}

type failingTool struct{}

func (failingTool) Name() string        { return "failing" }
func (failingTool) Description() string { return "Always fails." }
func (failingTool) Call(context.Context, string) (string, error) {
	return "", errors.New("tool broke")
}

func TestResolveToolCalls(t *testing.T) {
	w := New(Options{})
	registry := &Registry{Tools: map[string]tools.Tool{
		"echo":    echoTool{},
		"failing": failingTool{},
	}}

	messages := []chat.Message{
		{
			Role: chat.RoleAssistant,
			ToolInvocations: []chat.ToolInvocation{
				{State: chat.ToolStateCall, ToolCallID: "a", ToolName: "echo", Args: json.RawMessage(`"hi"`)},
				{State: chat.ToolStateCall, ToolCallID: "b", ToolName: "failing"},
				{State: chat.ToolStateCall, ToolCallID: "c", ToolName: "unregistered"},
			},
		},
	}

	out := w.resolveToolCalls(context.Background(), registry, messages)
	require.Len(t, out, 2)

	require.Equal(t, chat.RoleTool, out[0].Role)
	require.Equal(t, chat.ToolStateResult, out[0].ToolInvocations[0].State)
	require.Equal(t, "a", out[0].ToolInvocations[0].ToolCallID)
	require.JSONEq(t, `"echo:\"hi\""`, string(out[0].ToolInvocations[0].Result))

	require.Equal(t, "b", out[1].ToolInvocations[0].ToolCallID)
	require.JSONEq(t, `"Error: tool broke"`, string(out[1].ToolInvocations[0].Result))
}

func TestResolveToolCallsNothingPending(t *testing.T) {
	w := New(Options{})
	registry := &Registry{Tools: map[string]tools.Tool{"echo": echoTool{}}}
	require.Nil(t, w.resolveToolCalls(context.Background(), registry, []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
	}))
}
