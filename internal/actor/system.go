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

const (
	defaultDeactivateAfter = 5 * time.Minute
	defaultSweepInterval   = 30 * time.Second
	defaultMailboxSize     = 256

	// activationRetries bounds the resolve/post loop when an activation
	// drains between lookup and delivery.
	activationRetries = 3
)

// Config wires a System together.
type Config struct {
	// NodeID identifies this process; must appear in Nodes when a ring
	// is used.
	NodeID string

	// Nodes is the cluster membership. Empty means single-node: every
	// address is local.
	Nodes []Node

	// Store persists entity state.
	Store repository.StateStore

	// Transport ships calls to other nodes; required when len(Nodes) > 1.
	Transport Transport

	Logger  *slog.Logger
	Metrics *Metrics

	// Filters wrap every inbound call, outermost first. Metrics and
	// logging filters are appended automatically when configured.
	Filters []Filter

	DeactivateAfter time.Duration
	SweepInterval   time.Duration
	MailboxSize     int
}

// System is the entity runtime for one node: the activation registry,
// the dispatch path and the idle sweeper.
type System struct {
	self        Node
	ring        *Ring
	store       repository.StateStore
	transport   Transport
	logger      *slog.Logger
	metrics     *Metrics
	filters     []Filter
	idleAfter   time.Duration
	sweepEvery  time.Duration
	mailboxSize int

	mu          sync.Mutex
	kinds       map[Kind]KindSpec
	activations map[string]*activation
	stopped     bool

	stopJanitor chan struct{}
}

// NewSystem validates the config and builds a stopped system; call Start
// to begin the idle sweep.
func NewSystem(cfg Config) (*System, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("actor: config requires a state store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DeactivateAfter <= 0 {
		cfg.DeactivateAfter = defaultDeactivateAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}

	s := &System{
		store:       cfg.Store,
		transport:   cfg.Transport,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		idleAfter:   cfg.DeactivateAfter,
		sweepEvery:  cfg.SweepInterval,
		mailboxSize: cfg.MailboxSize,
		kinds:       make(map[Kind]KindSpec),
		activations: make(map[string]*activation),
		stopJanitor: make(chan struct{}),
	}

	if len(cfg.Nodes) > 0 {
		if cfg.NodeID == "" {
			return nil, fmt.Errorf("actor: NodeID is required with cluster membership")
		}
		var self *Node
		for i := range cfg.Nodes {
			if cfg.Nodes[i].ID == cfg.NodeID {
				self = &cfg.Nodes[i]
				break
			}
		}
		if self == nil {
			return nil, fmt.Errorf("actor: NodeID %s not in membership", cfg.NodeID)
		}
		if len(cfg.Nodes) > 1 && cfg.Transport == nil {
			return nil, fmt.Errorf("actor: multi-node membership requires a transport")
		}
		s.self = *self
		s.ring = NewRing(0)
		s.ring.SetMembers(cfg.Nodes)
	}

	filters := make([]Filter, 0, len(cfg.Filters)+2)
	filters = append(filters, cfg.Filters...)
	if cfg.Metrics != nil {
		filters = append(filters, cfg.Metrics.Filter())
	}
	filters = append(filters, LoggingFilter(cfg.Logger))
	s.filters = filters

	return s, nil
}

// Register adds an entity kind. All kinds must be registered before Start.
func (s *System) Register(spec KindSpec) error {
	if spec.Kind == "" || spec.New == nil {
		return fmt.Errorf("actor: kind spec requires Kind and New")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.kinds[spec.Kind]; exists {
		return fmt.Errorf("actor: kind %s already registered", spec.Kind)
	}
	s.kinds[spec.Kind] = spec
	return nil
}

// Start launches the idle sweeper.
func (s *System) Start() {
	go s.janitor()
}

// Invoke routes one entity call, local or remote, and decodes the reply
// into result when result is non-nil.
func (s *System) Invoke(ctx context.Context, kind Kind, key, method string, args any, result any) error {
	if err := domain.ValidateEntityKey(key); err != nil {
		return domain.ErrValidation(err.Error())
	}

	var argJSON []byte
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return domain.ErrInternal("encode arguments", err)
		}
		argJSON = b
	}

	ctx, corrID := ensureCorrelation(ctx)
	path := callPathFrom(ctx)
	addr := Address(kind, key)

	if s.ring != nil {
		owner, ok := s.ring.Owner(addr)
		if ok && owner.ID != s.self.ID {
			return s.invokeRemote(ctx, owner, &InvokeRequest{
				Kind:          kind,
				Key:           key,
				Method:        method,
				Args:          argJSON,
				CorrelationID: corrID,
				CallPath:      path,
			}, result)
		}
	}

	value, err := s.invokeLocal(ctx, kind, key, method, argJSON, path)
	if err != nil {
		return err
	}
	return assignResult(value, result)
}

func (s *System) invokeRemote(ctx context.Context, owner Node, req *InvokeRequest, result any) error {
	resp, err := s.transport.Send(ctx, owner, req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ErrTimeout(Address(req.Kind, req.Key) + "." + req.Method)
		}
		return domain.ErrUnavailable(fmt.Sprintf("node %s unreachable", owner.ID), err)
	}
	if resp.Error != nil {
		return resp.Error.AppError()
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return domain.ErrInternal("decode remote result", err)
		}
	}
	return nil
}

// HandleInvoke executes a call that arrived from another node.
func (s *System) HandleInvoke(ctx context.Context, req *InvokeRequest) *InvokeResponse {
	if req.CorrelationID != "" {
		ctx = WithCorrelation(ctx, req.CorrelationID)
	}
	value, err := s.invokeLocal(ctx, req.Kind, req.Key, req.Method, req.Args, req.CallPath)
	if err != nil {
		return &InvokeResponse{Error: errorPayload(err)}
	}
	var result json.RawMessage
	if value != nil {
		b, err := json.Marshal(value)
		if err != nil {
			return &InvokeResponse{Error: errorPayload(domain.ErrInternal("encode result", err))}
		}
		result = b
	}
	return &InvokeResponse{Result: result}
}

func (s *System) invokeLocal(ctx context.Context, kind Kind, key, method string, args []byte, path []string) (any, error) {
	addr := Address(kind, key)

	// A call that loops back into an entity already on the call path
	// would deadlock against its own mailbox. Reentrant-marked methods
	// run inline on the worker goroutine that is already holding the
	// entity's logical thread; everything else fails fast.
	if pathContains(path, addr) {
		if !s.isReentrant(kind, method) {
			return nil, domain.ErrConflict(fmt.Sprintf("non-reentrant call cycle on %s.%s", addr, method))
		}
		act, err := s.resolveActivation(ctx, kind, key)
		if err != nil {
			return nil, err
		}
		res := act.dispatch(&envelope{ctx: ctx, method: method, args: args, path: path})
		return res.value, res.err
	}

	for attempt := 0; attempt < activationRetries; attempt++ {
		act, err := s.resolveActivation(ctx, kind, key)
		if err != nil {
			return nil, err
		}
		value, err := act.post(ctx, method, args, path)
		if errors.Is(err, errDraining) {
			continue
		}
		return value, err
	}
	return nil, domain.ErrUnavailable("activation churn on "+addr, nil)
}

// resolveActivation returns a live activation for the address, creating
// and activating one when needed.
func (s *System) resolveActivation(ctx context.Context, kind Kind, key string) (*activation, error) {
	addr := Address(kind, key)
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return nil, domain.ErrUnavailable("runtime is shutting down", nil)
		}
		act, exists := s.activations[addr]
		if !exists {
			spec, known := s.kinds[kind]
			if !known {
				s.mu.Unlock()
				return nil, domain.ErrNotFound("entity kind", string(kind))
			}
			act = newActivation(s, spec, key)
			s.activations[addr] = act
			s.mu.Unlock()

			if err := act.start(ctx); err != nil {
				s.removeActivation(act)
				act.fail(err)
				return nil, err
			}
			act.markReady()
			s.metrics.activationUp(kind)
			return act, nil
		}
		s.mu.Unlock()

		select {
		case <-act.ready:
		case <-ctx.Done():
			return nil, domain.ErrTimeout("activate " + addr)
		}
		if act.activateErr != nil {
			return nil, act.activateErr
		}
		if act.isDraining() {
			select {
			case <-act.done:
			case <-ctx.Done():
				return nil, domain.ErrTimeout("activate " + addr)
			}
			continue
		}
		return act, nil
	}
}

func (s *System) removeActivation(a *activation) {
	s.mu.Lock()
	if current, ok := s.activations[a.address]; ok && current == a {
		delete(s.activations, a.address)
		s.metrics.activationDown(a.spec.Kind)
	}
	s.mu.Unlock()
}

func (s *System) callChain(final InvokeFunc) InvokeFunc {
	return buildChain(s.filters, final)
}

func (s *System) isReentrant(kind Kind, method string) bool {
	s.mu.Lock()
	spec, ok := s.kinds[kind]
	s.mu.Unlock()
	if !ok {
		return false
	}
	for _, m := range spec.Reentrant {
		if m == method {
			return true
		}
	}
	return false
}

// janitor retires idle activations and, after a membership change,
// activations this node no longer owns.
func (s *System) janitor() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stopJanitor:
			return
		}
	}
}

func (s *System) sweep(now time.Time) {
	s.mu.Lock()
	acts := make([]*activation, 0, len(s.activations))
	for _, a := range s.activations {
		acts = append(acts, a)
	}
	s.mu.Unlock()

	for _, a := range acts {
		if s.ring != nil {
			if owner, ok := s.ring.Owner(a.address); ok && owner.ID != s.self.ID {
				a.beginDrain(DeactivateRebalance)
				continue
			}
		}
		idle := a.spec.DeactivateAfter
		if idle <= 0 {
			idle = s.idleAfter
		}
		if a.idleFor(idle, now) {
			a.beginDrain(DeactivateIdle)
		}
	}
}

// SetMembers replaces cluster membership at runtime. Misplaced
// activations drain on the next sweep.
func (s *System) SetMembers(nodes []Node) {
	if s.ring == nil {
		s.ring = NewRing(0)
	}
	s.ring.SetMembers(nodes)
}

// Drain deactivates every entity and stops the sweeper. New invocations
// fail with UNAVAILABLE once draining starts.
func (s *System) Drain(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	acts := make([]*activation, 0, len(s.activations))
	for _, a := range s.activations {
		acts = append(acts, a)
	}
	s.mu.Unlock()

	close(s.stopJanitor)

	for _, a := range acts {
		<-a.ready // never drain an activation mid-OnActivate
		if a.activateErr == nil {
			a.beginDrain(DeactivateShutdown)
		}
	}
	for _, a := range acts {
		if a.activateErr != nil {
			continue
		}
		select {
		case <-a.done:
		case <-ctx.Done():
			return fmt.Errorf("drain interrupted: %w", ctx.Err())
		}
	}
	s.logger.Info("actor runtime drained", slog.Int("activations", len(acts)))
	return nil
}

// ActivationCount reports live activations, for health and tests.
func (s *System) ActivationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activations)
}

func assignResult(value any, result any) error {
	if result == nil || value == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return domain.ErrInternal("encode result", err)
	}
	if err := json.Unmarshal(b, result); err != nil {
		return domain.ErrInternal("decode result", err)
	}
	return nil
}
