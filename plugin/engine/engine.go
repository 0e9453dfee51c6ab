// Package engine adapts an ollama-compatible local inference engine behind a
// uniform contract: initialize a named model (with best-effort load
// progress), then stream generated tokens for a conversation.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrEngineUnavailable means no session could be started: engine not
	// reachable, model missing and not pullable, unsupported model id.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrGenerationFailed means the engine failed mid-stream. The stream is
	// still closed cleanly so consumers never hang.
	ErrGenerationFailed = errors.New("generation failed")
)

// Progress is one model-load progress event.
type Progress struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

// ProgressFunc receives load progress. Delivery is best-effort: events are
// dropped when the consumer lags, and a missed update is never fatal.
type ProgressFunc func(Progress)

// Chunk is one unit of a token stream. The final chunk of a healthy stream
// has Done set; a failed stream ends with a chunk carrying Err. The channel
// is always closed afterwards.
type Chunk struct {
	Content string
	Done    bool
	Err     error
}

// progressBuffer bounds in-flight progress events per initialization.
const progressBuffer = 16

// Manager owns the single live engine session per process. Initialization
// for the same model coalesces; initializing a different model replaces the
// prior session.
type Manager struct {
	serverURL string
	httpc     *http.Client
	probe     func(context.Context) bool

	group singleflight.Group

	mu          sync.Mutex
	current     *Session
	probed      bool
	accelerated bool
}

// NewManager builds a Manager talking to the engine at serverURL. probe is
// consulted once, lazily, to decide whether to run accelerated.
func NewManager(serverURL string, probe func(context.Context) bool) *Manager {
	return &Manager{
		serverURL: serverURL,
		httpc:     &http.Client{Timeout: 10 * time.Minute},
		probe:     probe,
	}
}

// Acquire returns a ready session for modelID, reusing the live one when the
// model matches. Concurrent acquisitions of the same model share one
// in-flight initialization.
func (m *Manager) Acquire(ctx context.Context, modelID string, onProgress ProgressFunc) (*Session, error) {
	if modelID == "" {
		return nil, errors.Wrap(ErrEngineUnavailable, "empty model id")
	}

	m.mu.Lock()
	if cur := m.current; cur != nil && cur.modelID == modelID {
		m.mu.Unlock()
		return cur, nil
	}
	m.mu.Unlock()

	v, err, shared := m.group.Do(modelID, func() (any, error) {
		return m.initialize(ctx, modelID, onProgress)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("engine: coalesced concurrent initialization", "model", modelID)
	}
	return v.(*Session), nil
}

// Current returns the live session, or nil when none has been initialized.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) initialize(ctx context.Context, modelID string, onProgress ProgressFunc) (*Session, error) {
	accelerated := m.acceleration(ctx)

	if err := m.ensureModel(ctx, modelID, onProgress); err != nil {
		return nil, err
	}

	opts := []ollama.Option{
		ollama.WithModel(modelID),
		ollama.WithServerURL(m.serverURL),
		ollama.WithHTTPClient(m.httpc),
	}
	if !accelerated {
		// Zero GPU layers forces the software fallback.
		opts = append(opts, ollama.WithRunnerNumGPU(0))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, errors.Wrapf(ErrEngineUnavailable, "create client for model %s: %v", modelID, err)
	}

	session := &Session{
		modelID:     modelID,
		accelerated: accelerated,
		llm:         llm,
	}

	m.mu.Lock()
	if prev := m.current; prev != nil && prev.modelID != modelID {
		slog.Info("engine: replacing session", "previous", prev.modelID, "model", modelID)
	}
	m.current = session
	m.mu.Unlock()

	slog.Info("engine: session ready", "model", modelID, "accelerated", accelerated)
	return session, nil
}

// acceleration probes the environment once and caches the answer for the
// manager's lifetime.
func (m *Manager) acceleration(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.probed {
		m.accelerated = m.probe != nil && m.probe(ctx)
		m.probed = true
	}
	return m.accelerated
}
