// Package actor is the entity runtime: addressable state machines keyed
// by (kind, key), each processing its mailbox on a single goroutine.
// Activations restore state on first call, persist through a pluggable
// StateStore, and deactivate after an idle period. Calls route
// transparently to the owning node via consistent hashing.
package actor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/stakemesh/platform/internal/domain"
)

// Kind names an entity type ("wallet", "bet", "odds", ...).
type Kind string

// Address renders the canonical routing key for an entity.
func Address(kind Kind, key string) string {
	return string(kind) + "/" + key
}

// DeactivateReason tells OnDeactivate why the activation is going away.
type DeactivateReason string

const (
	DeactivateIdle      DeactivateReason = "idle"
	DeactivateShutdown  DeactivateReason = "shutdown"
	DeactivateRebalance DeactivateReason = "rebalance"
)

// Handler executes one named method against an activated entity. Args is
// the JSON-encoded request; the returned value is JSON-encoded for the
// caller, so local and remote invocations behave identically.
type Handler func(ctx context.Context, args []byte) (any, error)

// Entity is implemented by every addressable entity.
type Entity interface {
	// Handlers returns the method dispatch table. Called once per activation.
	Handlers() map[string]Handler

	// OnActivate restores state before the first message is dispatched.
	OnActivate(ctx context.Context) error

	// OnDeactivate persists state as the activation is torn down.
	OnDeactivate(ctx context.Context, reason DeactivateReason) error
}

// StateAccess is an activation's private view of the state store, bound
// to its (kind, key) with optimistic version tracking.
type StateAccess interface {
	// Load unmarshals the persisted blob into v; found is false when the
	// entity has never been saved.
	Load(ctx context.Context, v any) (found bool, err error)

	// Save marshals v and writes it at the tracked version. A conflict
	// means another node took the entity over; the activation is retired.
	Save(ctx context.Context, v any) error

	// Version returns the currently tracked state version.
	Version() int64
}

// Caller invokes entity methods by address. Implemented by the System;
// entities use it for outbound calls so the cycle bet -> wallet -> ...
// stays interface-only.
type Caller interface {
	// Invoke routes a call to the owning activation. args is JSON-encoded;
	// the response is decoded into result when result is non-nil.
	Invoke(ctx context.Context, kind Kind, key, method string, args any, result any) error
}

// Env is the per-activation environment handed to entity factories.
type Env struct {
	Kind   Kind
	Key    string
	State  StateAccess
	Caller Caller
	Logger *slog.Logger
}

// Factory builds one entity instance per activation.
type Factory func(env *Env) Entity

// KindSpec registers an entity kind with the system.
type KindSpec struct {
	Kind Kind
	New  Factory

	// DeactivateAfter overrides the system-wide idle timeout when > 0.
	DeactivateAfter time.Duration

	// Reentrant lists methods that may be called from within the
	// entity's own call chain (A -> B -> A). All other methods fail such
	// cycles instead of deadlocking.
	Reentrant []string
}

// Typed adapts a strongly typed method onto the Handler shape, decoding
// JSON args into Req.
func Typed[Req any, Res any](fn func(ctx context.Context, req Req) (Res, error)) Handler {
	return func(ctx context.Context, args []byte) (any, error) {
		var req Req
		if len(args) > 0 && string(args) != "null" {
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, domain.ErrValidation("malformed arguments: " + err.Error())
			}
		}
		return fn(ctx, req)
	}
}
