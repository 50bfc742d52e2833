// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/errors"
)

// Param describes one parameter of a tool.
type Param struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

// Descriptor is the machine-readable description of a tool. It is immutable
// once registered; all catalogue text is derived from it.
type Descriptor struct {
	Name        string
	Description string
	Parameters  []Param
}

// Handler executes a tool call. It receives the arguments object keyed by
// parameter name and returns the result text. Handlers may block; the
// dispatcher runs each call on its own goroutine either way.
type Handler func(ctx context.Context, args map[string]any) (string, error)

type entry struct {
	desc    Descriptor
	handler Handler
}

// Registry maps tool names to handlers and descriptors. It is populated at
// startup and read-only afterwards, so concurrent lookups need no locking.
type Registry struct {
	order   []string
	entries map[string]entry
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. It fails if the name is empty, the handler is nil, or
// the name is already taken.
func (r *Registry) Register(desc Descriptor, handler Handler) error {
	if desc.Name == "" {
		return errors.InvalidInput("tool name must not be empty")
	}
	if handler == nil {
		return errors.InvalidInput(fmt.Sprintf("tool %s has no handler", desc.Name))
	}
	if _, exists := r.entries[desc.Name]; exists {
		return errors.AlreadyExists("tool", desc.Name)
	}
	r.entries[desc.Name] = entry{desc: desc, handler: handler}
	r.order = append(r.order, desc.Name)
	return nil
}

// Clone returns an independent copy of the registry. The copy can take
// additional registrations, such as per-request tools layered on top of the
// static set, without mutating the original.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		order:   make([]string, len(r.order)),
		entries: make(map[string]entry, len(r.entries)),
	}
	copy(c.order, r.order)
	for name, e := range r.entries {
		c.entries[name] = e
	}
	return c
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Names returns all tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Summary renders a terse one-line-per-tool listing in registration order,
// used inside the system prompt.
func (r *Registry) Summary() string {
	var b strings.Builder
	for _, name := range r.order {
		d := r.entries[name].desc
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return b.String()
}

// Catalogue renders the full tool catalogue in registration order: one block
// per tool with its description and parameters marked required or optional.
// The output is deterministic for a given registration sequence.
func (r *Registry) Catalogue() string {
	var b strings.Builder
	for _, name := range r.order {
		d := r.entries[name].desc
		fmt.Fprintf(&b, "\n**%s**:\n", d.Name)
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
		if len(d.Parameters) == 0 {
			b.WriteString("Parameters: none\n")
			continue
		}
		b.WriteString("Parameters:\n")
		for _, p := range d.Parameters {
			requirement := "optional"
			if p.Required {
				requirement = "required"
			}
			fmt.Fprintf(&b, "  - %s (%s) (%s): %s\n", p.Name, p.Type, requirement, p.Description)
		}
	}
	return b.String()
}
