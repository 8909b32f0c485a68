package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/repository"
)

// errDraining tells the dispatcher to re-resolve the activation; the one
// it reached is on its way out.
var errDraining = errors.New("activation draining")

type envelope struct {
	ctx    context.Context
	method string
	args   []byte
	path   []string
	reply  chan invokeResult
}

type invokeResult struct {
	value any
	err   error
}

// activation is one live instance of an entity: mailbox, worker
// goroutine, and version-tracked state access.
type activation struct {
	system   *System
	spec     KindSpec
	key      string
	address  string
	state    *stateAccess
	entity   Entity
	handlers map[string]Handler
	logger   *slog.Logger

	mailbox chan *envelope
	ready   chan struct{} // closed once OnActivate finished (or failed)
	done    chan struct{} // closed when the worker has exited

	activateErr error

	mu          sync.Mutex
	busy        bool
	draining    bool
	lost        bool // state version conflict: another node owns us now
	drainReason DeactivateReason
	lastUsed    time.Time
}

func newActivation(s *System, spec KindSpec, key string) *activation {
	return &activation{
		system:  s,
		spec:    spec,
		key:     key,
		address: Address(spec.Kind, key),
		state: &stateAccess{
			store: s.store,
			kind:  spec.Kind,
			key:   key,
		},
		logger:   s.logger.With(slog.String("kind", string(spec.Kind)), slog.String("key", key)),
		mailbox:  make(chan *envelope, s.mailboxSize),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		lastUsed: time.Now(),
	}
}

// start constructs the entity, runs OnActivate and launches the worker.
// Called exactly once, by the goroutine that won the registry insert.
func (a *activation) start(ctx context.Context) error {
	env := &Env{
		Kind:   a.spec.Kind,
		Key:    a.key,
		State:  a.state,
		Caller: a.system,
		Logger: a.logger,
	}
	a.entity = a.spec.New(env)
	a.handlers = a.entity.Handlers()

	if err := a.entity.OnActivate(ctx); err != nil {
		return domain.ErrUnavailable(fmt.Sprintf("activate %s", a.address), err)
	}

	go a.run()
	a.logger.Debug("entity activated", slog.Int64("state_version", a.state.Version()))
	return nil
}

// post hands an envelope to the worker and waits for the reply or the
// caller's deadline. A deadline expiry does not cancel the dispatch; the
// entity still processes the message (no rollback).
func (a *activation) post(ctx context.Context, method string, args []byte, path []string) (any, error) {
	env := &envelope{
		ctx:    ctx,
		method: method,
		args:   args,
		path:   path,
		reply:  make(chan invokeResult, 1),
	}

	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		return nil, errDraining
	}
	select {
	case a.mailbox <- env:
		a.lastUsed = time.Now()
		a.mu.Unlock()
	default:
		a.mu.Unlock()
		return nil, domain.ErrUnavailable("mailbox full for "+a.address, nil)
	}

	select {
	case res := <-env.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, domain.ErrTimeout(a.address + "." + method)
	}
}

// run is the entity's single logical thread.
func (a *activation) run() {
	for env := range a.mailbox {
		a.mu.Lock()
		a.busy = true
		a.mu.Unlock()

		res := a.dispatch(env)
		env.reply <- res

		a.mu.Lock()
		a.busy = false
		a.lastUsed = time.Now()
		if a.lost && !a.draining {
			a.draining = true
			a.drainReason = DeactivateRebalance
			close(a.mailbox)
		}
		a.mu.Unlock()
	}

	a.mu.Lock()
	reason := a.drainReason
	a.mu.Unlock()

	dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.entity.OnDeactivate(dctx, reason); err != nil {
		a.logger.Warn("deactivate hook failed",
			slog.String("reason", string(reason)), slog.Any("error", err))
	} else {
		a.logger.Debug("entity deactivated", slog.String("reason", string(reason)))
	}

	a.system.removeActivation(a)
	close(a.done)
}

// dispatch executes one envelope through the filter chain.
func (a *activation) dispatch(env *envelope) (res invokeResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("entity panicked",
				slog.String("method", env.method), slog.Any("panic", r))
			res = invokeResult{err: domain.ErrInternal(
				fmt.Sprintf("%s.%s panicked", a.address, env.method), nil)}
		}
	}()

	ctx := env.ctx
	if err := ctx.Err(); err != nil {
		return invokeResult{err: domain.ErrTimeout(a.address + "." + env.method)}
	}

	handler, ok := a.handlers[env.method]
	if !ok {
		return invokeResult{err: domain.ErrNotFound("method", string(a.spec.Kind)+"."+env.method)}
	}

	path := make([]string, 0, len(env.path)+1)
	path = append(append(path, env.path...), a.address)
	ctx = withCallPath(ctx, path)

	info := &CallInfo{
		Kind:          a.spec.Kind,
		Key:           a.key,
		Method:        env.method,
		CorrelationID: CorrelationFrom(ctx),
	}

	value, err := a.system.callChain(func(ctx context.Context, _ *CallInfo, args []byte) (any, error) {
		return handler(ctx, args)
	})(ctx, info, env.args)

	if err != nil && errors.Is(err, repository.ErrVersionConflict) {
		a.mu.Lock()
		a.lost = true
		a.mu.Unlock()
		a.logger.Warn("state version conflict, retiring activation",
			slog.String("method", env.method))
	}
	return invokeResult{value: value, err: err}
}

// beginDrain initiates teardown; idempotent.
func (a *activation) beginDrain(reason DeactivateReason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.draining {
		return
	}
	a.draining = true
	a.drainReason = reason
	close(a.mailbox)
}

// idleFor reports whether the activation can be retired: no queued or
// running work and untouched for at least idle.
func (a *activation) idleFor(idle time.Duration, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.draining && !a.busy && len(a.mailbox) == 0 && now.Sub(a.lastUsed) >= idle
}

func (a *activation) isDraining() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.draining
}

func (a *activation) markReady() { close(a.ready) }

func (a *activation) fail(err error) {
	a.activateErr = err
	close(a.ready)
}

// stateAccess binds a StateStore to one activation with optimistic
// version tracking.
type stateAccess struct {
	store   repository.StateStore
	kind    Kind
	key     string
	version int64
}

func (s *stateAccess) Load(ctx context.Context, v any) (bool, error) {
	rec, err := s.store.Load(ctx, string(s.kind), s.key)
	if err != nil {
		return false, fmt.Errorf("load %s/%s: %w", s.kind, s.key, err)
	}
	if rec == nil {
		s.version = 0
		return false, nil
	}
	if err := json.Unmarshal(rec.Data, v); err != nil {
		return false, fmt.Errorf("decode state %s/%s: %w", s.kind, s.key, err)
	}
	s.version = rec.Version
	return true, nil
}

func (s *stateAccess) Save(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %s/%s: %w", s.kind, s.key, err)
	}
	version, err := s.store.Save(ctx, string(s.kind), s.key, data, s.version)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return &domain.AppError{
				Code:    domain.CodeConflict,
				Message: fmt.Sprintf("state of %s/%s was taken over", s.kind, s.key),
				Status:  409,
				Cause:   err,
			}
		}
		return fmt.Errorf("save %s/%s: %w", s.kind, s.key, err)
	}
	s.version = version
	return nil
}

func (s *stateAccess) Version() int64 { return s.version }
