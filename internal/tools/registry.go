// ABOUTME: Tool registry: definitions, compiled argument schemas and handlers.
// ABOUTME: Validates arguments with jsonschema/v6 before a handler runs.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// Annotations are the MCP behaviour hints attached to a tool.
type Annotations struct {
	ReadOnlyHint    bool `json:"readOnlyHint"`
	DestructiveHint bool `json:"destructiveHint"`
	IdempotentHint  bool `json:"idempotentHint"`
	OpenWorldHint   bool `json:"openWorldHint"`
}

// Call carries one tool invocation.
type Call struct {
	Session string
	Args    json.RawMessage
}

// Result is the text a tool produced. IsError marks a failure the caller
// should read and react to.
type Result struct {
	Text    string
	IsError bool
}

func textResult(text string) Result  { return Result{Text: text} }
func errorResult(text string) Result { return Result{Text: text, IsError: true} }

// Handler executes a tool whose arguments already passed schema validation.
type Handler func(ctx context.Context, call Call) Result

// Tool is one catalogue entry.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Annotations *Annotations
	Handler     Handler
}

// Registry holds the tool catalogue. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	schemas map[string]*jsonschema.Schema
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger,
	}
}

// Register compiles the tool's schema and adds it. Names must be unique.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tool needs a name and a handler")
	}
	if len(t.InputSchema) == 0 {
		t.InputSchema = json.RawMessage(`{"type":"object","properties":{}}`)
	}

	schema, err := compileSchema(t.Name, t.InputSchema)
	if err != nil {
		return fmt.Errorf("compiling schema for %s: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolCollision, t.Name)
	}
	r.tools[t.Name] = t
	r.schemas[t.Name] = schema
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	url := "mem://tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// List returns every tool sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Call validates args against the tool's schema and runs it. Missing or null
// arguments are treated as an empty object. Invalid arguments produce an
// error Result, not a Go error.
func (r *Registry) Call(ctx context.Context, name, session string, args json.RawMessage) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if trimmed := bytes.TrimSpace(args); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		args = json.RawMessage("{}")
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid arguments for %s: %v", name, err)), nil
	}
	if err := schema.Validate(instance); err != nil {
		r.logger.Debug("tool arguments rejected", "tool", name, "error", err)
		return errorResult(fmt.Sprintf("Invalid arguments for %s: %s", name, describeValidation(err))), nil
	}

	return t.Handler(ctx, Call{Session: session, Args: args}), nil
}

// describeValidation flattens a schema validation error to one line per leaf.
func describeValidation(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	var lines []string
	collectLeaves(verr, &lines)
	if len(lines) == 0 {
		return verr.Error()
	}
	return strings.Join(lines, "; ")
}

func collectLeaves(e *jsonschema.ValidationError, out *[]string) {
	if len(e.Causes) == 0 {
		*out = append(*out, e.Error())
		return
	}
	for _, c := range e.Causes {
		collectLeaves(c, out)
	}
}
