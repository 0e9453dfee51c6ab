// Package worker hosts the edge worker: the request interception gateway,
// the chat turn orchestrator, and the lifecycle manager coordinating them.
//
// The lifecycle is a single dispatch loop over typed events, so install,
// activate, and message handling keep the ordering of a single-threaded
// event loop even though the HTTP surface runs on many goroutines.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/tmc/langchaingo/tools"

	"github.com/uselocalchat/localchat/chat"
	"github.com/uselocalchat/localchat/plugin/engine"
)

// EngineSession is the slice of an engine session the orchestrator needs.
type EngineSession interface {
	Stream(ctx context.Context, messages []chat.Message) (<-chan engine.Chunk, error)
	GenerateTitle(ctx context.Context, userText string) (string, error)
}

// EngineProvider hands out ready engine sessions.
type EngineProvider interface {
	Acquire(ctx context.Context, modelID string, onProgress engine.ProgressFunc) (EngineSession, error)
}

// SyncClient is the slice of the backend client the orchestrator needs.
type SyncClient interface {
	GetChat(ctx context.Context, id string) (*chat.Record, error)
	CreateChat(ctx context.Context, id, userID, title string) error
	AppendMessages(ctx context.Context, messages []chat.Message) error
}

// Registry is the process-wide handler state, constructed exactly once at
// activation and handed to the orchestrator by reference.
type Registry struct {
	Engines EngineProvider
	Tools   map[string]tools.Tool
}

type event interface {
	isEvent()
}

type installEvent struct {
	done chan error
}

type activateEvent struct {
	done chan error
}

type messageEvent struct {
	msg   Message
	reply chan<- Message
}

func (installEvent) isEvent()  {}
func (activateEvent) isEvent() {}
func (messageEvent) isEvent()  {}

// Worker is one worker instance: it owns the event loop, the keep-alive
// cache, and (after activation) the registry.
type Worker struct {
	probe        func(context.Context) bool
	engines      EngineProvider
	sync         SyncClient
	tools        map[string]tools.Tool
	defaultModel string

	events   chan event
	cache    *keepAliveCache
	registry atomic.Pointer[Registry]

	generation atomic.Int64
}

// Options wires a Worker's collaborators.
type Options struct {
	Probe        func(context.Context) bool
	Engines      EngineProvider
	Sync         SyncClient
	Tools        map[string]tools.Tool
	DefaultModel string
}

// New builds a Worker. Install and Activate must run (through the event
// loop) before the orchestrator serves turns.
func New(opts Options) *Worker {
	return &Worker{
		probe:        opts.Probe,
		engines:      opts.Engines,
		sync:         opts.Sync,
		tools:        opts.Tools,
		defaultModel: opts.DefaultModel,
		events:       make(chan event, 32),
		cache:        newKeepAliveCache(),
	}
}

// Run drives the dispatch loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.events:
			w.handle(ctx, ev)
		}
	}
}

func (w *Worker) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case installEvent:
		w.handleInstall(e)
	case activateEvent:
		w.handleActivate(e)
	case messageEvent:
		w.handleMessage(ctx, e)
	}
}

// handleInstall eagerly supersedes any previously installed generation and
// pre-populates an empty keep-alive cache bucket.
func (w *Worker) handleInstall(ev installEvent) {
	gen := w.generation.Add(1)
	if gen > 1 {
		slog.Info("worker: superseding previous generation", "generation", gen)
	}
	w.cache.Reset()
	slog.Info("worker: installed", "generation", gen)
	ev.done <- nil
}

// handleActivate builds the registry exactly once. Activation firing again
// is a no-op, never a second registration.
func (w *Worker) handleActivate(ev activateEvent) {
	if w.registry.Load() != nil {
		ev.done <- nil
		return
	}
	w.registry.Store(&Registry{
		Engines: w.engines,
		Tools:   w.tools,
	})
	slog.Info("worker: engine handler activated")
	ev.done <- nil
}

func (w *Worker) handleMessage(ctx context.Context, ev messageEvent) {
	switch ev.msg.Kind {
	case KindCheckGPU:
		// Probing suspends, so it runs off the loop; the reply carries the
		// caller's correlation id back.
		msg := ev.msg
		reply := ev.reply
		go func() {
			available := w.probe != nil && w.probe(ctx)
			slog.Info("worker: gpu availability checked", "available", available)
			select {
			case reply <- Message{Kind: KindReturn, UUID: msg.UUID, Content: available}:
			default:
			}
		}()
	default:
		slog.Debug("worker: ignoring unknown message kind", "kind", ev.msg.Kind)
	}
}

// Install enqueues the install event and waits for it.
func (w *Worker) Install(ctx context.Context) error {
	return w.roundTrip(ctx, func(done chan error) event { return installEvent{done: done} })
}

// Activate enqueues the activate event and waits for it.
func (w *Worker) Activate(ctx context.Context) error {
	return w.roundTrip(ctx, func(done chan error) event { return activateEvent{done: done} })
}

func (w *Worker) roundTrip(ctx context.Context, build func(chan error) event) error {
	done := make(chan error, 1)
	select {
	case w.events <- build(done):
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send posts a protocol message to the worker and waits for the correlated
// reply. The ctx deadline is the caller's timeout; a worker that never
// answers can not block forever.
func (w *Worker) Send(ctx context.Context, msg Message) (Message, error) {
	reply := make(chan Message, 1)
	select {
	case w.events <- messageEvent{msg: msg, reply: reply}:
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Registry returns the activated registry, or nil before activation.
func (w *Worker) Registry() *Registry {
	return w.registry.Load()
}

type managerProvider struct {
	mgr *engine.Manager
}

func (p managerProvider) Acquire(ctx context.Context, modelID string, onProgress engine.ProgressFunc) (EngineSession, error) {
	session, err := p.mgr.Acquire(ctx, modelID, onProgress)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ProvideEngine adapts an engine.Manager to the EngineProvider contract.
func ProvideEngine(mgr *engine.Manager) EngineProvider {
	return managerProvider{mgr: mgr}
}
