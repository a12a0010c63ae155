// Package tools implements the curated set of MongoDB operations
// exposed to the planning model: argument validation, tenant scoping,
// collection allow-listing, and telemetry recording are handled once in
// Runner.Run so every tool only has to implement Execute.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/homelead/mcphost/internal/config"
	"github.com/homelead/mcphost/internal/session"
	"github.com/homelead/mcphost/internal/telemetry"
)

// Error is a user-facing tool failure: bad arguments, disallowed
// collection, or a wrapped internal error the caller shouldn't see the
// detail of. It is distinct from a Go error returned for transport or
// programmer-error conditions that should abort the whole request.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Errorf builds a *Error.
func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Tool is one named, schema-validated MongoDB operation.
type Tool interface {
	Name() string
	// Schema is the compiled JSON Schema for this tool's arguments,
	// used for argument validation.
	Schema() *jsonschema.Schema
	// RawSchema returns the tool's JSON Schema as a map, for building
	// the function-calling declaration without re-serializing the
	// compiled schema.
	RawSchema() map[string]any
	Description() string
	// Execute runs the tool body against already-validated,
	// already-tenant-scoped arguments.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Deps bundles the shared collaborators every tool needs.
type Deps struct {
	Session *session.Session
	Config  *config.Config
	Log     *slog.Logger
}

// Runner validates, tenant-scopes, allow-list-checks, executes, and
// records telemetry for any registered Tool, the Go equivalent of the
// tool-base run() procedure every tool in the system this host replaces
// shared.
type Runner struct {
	deps      Deps
	telemetry *telemetry.Telemetry
	registry  map[string]Tool
	// listCollections is invoked lazily to build the allow-list error
	// message, matching the original's habit of dynamically invoking
	// the list_collections tool rather than reading config directly.
	listCollections func(ctx context.Context) ([]string, error)
}

// NewRunner builds a Runner bound to the given deps and telemetry sink.
func NewRunner(deps Deps, tel *telemetry.Telemetry) *Runner {
	return &Runner{deps: deps, telemetry: tel, registry: make(map[string]Tool)}
}

// Register adds a tool under its own name. Re-registering a name
// replaces the previous tool.
func (r *Runner) Register(t Tool) {
	r.registry[t.Name()] = t
	if t.Name() == "list_collections" {
		r.listCollections = func(ctx context.Context) ([]string, error) {
			res, err := t.Execute(ctx, map[string]any{})
			if err != nil {
				return nil, err
			}
			names, _ := res["result"].([]string)
			return names, nil
		}
	}
}

// Lookup returns a registered tool by name.
func (r *Runner) Lookup(name string) (Tool, bool) {
	t, ok := r.registry[name]
	return t, ok
}

// Names returns every registered tool's name.
func (r *Runner) Names() []string {
	out := make([]string, 0, len(r.registry))
	for name := range r.registry {
		out = append(out, name)
	}
	return out
}

// All returns every registered tool.
func (r *Runner) All() []Tool {
	out := make([]Tool, 0, len(r.registry))
	for _, t := range r.registry {
		out = append(out, t)
	}
	return out
}

// Run executes the named tool: validates arguments against its schema,
// applies tenant scoping to filter/pipeline arguments, enforces the
// collection allow-list, runs the tool body, and records telemetry
// around the whole attempt.
func (r *Runner) Run(ctx context.Context, name string, rawArgs map[string]any) (map[string]any, error) {
	start := time.Now()

	t, ok := r.registry[name]
	if !ok {
		return nil, Errorf("unknown tool %q", name)
	}

	args := cloneArgs(rawArgs)

	if err := r.validate(t, args); err != nil {
		r.record(name, start, false, args)
		return nil, err
	}

	if err := r.applyTenantScope(name, args); err != nil {
		r.record(name, start, false, args)
		return nil, err
	}

	if err := r.checkAllowed(ctx, args); err != nil {
		r.record(name, start, false, args)
		return nil, err
	}

	r.deps.Log.Debug("starting tool", "tool", name, "args", args)
	result, err := t.Execute(ctx, args)
	if err != nil {
		r.record(name, start, false, args)
		var te *Error
		if ok := asError(err, &te); ok {
			r.deps.Log.Warn("tool failed", "tool", name, "error", err)
			return nil, te
		}
		r.deps.Log.Error("tool errored", "tool", name, "error", err)
		return nil, Errorf("an internal error occurred in %q", name)
	}

	r.deps.Log.Info("tool succeeded", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	r.record(name, start, true, args)
	return result, nil
}

func asError(err error, target **Error) bool {
	if te, ok := err.(*Error); ok {
		*target = te
		return true
	}
	return false
}

func (r *Runner) record(name string, start time.Time, success bool, args map[string]any) {
	if r.telemetry == nil {
		return
	}
	r.telemetry.Record(name, time.Since(start), success, args)
}

func cloneArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
