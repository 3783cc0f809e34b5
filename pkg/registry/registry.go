// Package registry loads the configured set of named functions into an
// immutable name -> handler mapping. Loading is strictly sequential and
// all-or-nothing: a partial registry is never exposed, and any failure aborts
// startup.
package registry

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/fnhost/fnhost/pkg/function"
)

// Spec declares one function: its routing name, the handler reference the
// resolver understands, and the code directory the handler runs against.
type Spec struct {
	Name    string `yaml:"name" json:"name"`
	Handler string `yaml:"handler" json:"handler"`
	CodeDir string `yaml:"codedir" json:"codedir"`
	// Compat optionally constrains the handler's reported version,
	// e.g. ">=1.2.0 <2.0.0".
	Compat string `yaml:"compat,omitempty" json:"compat,omitempty"`
}

// ConfigurationError reports invalid startup configuration. It is fatal: the
// server must never reach Running when one is returned.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration invalid: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration invalid: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Registry is the read-only name -> handler mapping. It is populated once by
// Load, shared across all concurrent calls without locking, and never mutated.
type Registry struct {
	handlers map[string]function.Handler
	codeDirs map[string]string
}

// Load resolves and initializes every spec in order. Each code directory is
// resolved to an absolute path before the handler sees it, so nothing here or
// later ever mutates the process working directory.
func Load(specs []Spec, resolver Resolver) (*Registry, error) {
	if len(specs) == 0 {
		return nil, &ConfigurationError{Reason: "no functions configured"}
	}
	if resolver == nil {
		return nil, &ConfigurationError{Reason: "no handler resolver provided"}
	}

	handlers := make(map[string]function.Handler, len(specs))
	codeDirs := make(map[string]string, len(specs))
	for i, spec := range specs {
		if spec.Name == "" || spec.Handler == "" || spec.CodeDir == "" {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("function #%d missing name, handler or codedir", i),
			}
		}
		if _, dup := handlers[spec.Name]; dup {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("duplicate function name %q", spec.Name),
			}
		}

		codeDir, err := filepath.Abs(spec.CodeDir)
		if err != nil {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("function %q: resolve codedir %q", spec.Name, spec.CodeDir),
				Err:    err,
			}
		}

		h, err := resolver.Resolve(spec.Handler, codeDir)
		if err != nil {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("function %q: resolve handler %q", spec.Name, spec.Handler),
				Err:    err,
			}
		}

		if err := checkCompat(spec, h); err != nil {
			return nil, err
		}

		if err := h.Initialize(codeDir); err != nil {
			return nil, &ConfigurationError{
				Reason: fmt.Sprintf("function %q: initialize handler", spec.Name),
				Err:    err,
			}
		}

		handlers[spec.Name] = h
		codeDirs[spec.Name] = codeDir
	}

	return &Registry{handlers: handlers, codeDirs: codeDirs}, nil
}

func checkCompat(spec Spec, h function.Handler) error {
	if spec.Compat == "" {
		return nil
	}
	c, err := semver.NewConstraint(spec.Compat)
	if err != nil {
		return &ConfigurationError{
			Reason: fmt.Sprintf("function %q: compat constraint %q", spec.Name, spec.Compat),
			Err:    err,
		}
	}
	ver, ok := h.(function.Versioner)
	if !ok {
		return &ConfigurationError{
			Reason: fmt.Sprintf("function %q: compat %q set but handler reports no version", spec.Name, spec.Compat),
		}
	}
	v, err := semver.NewVersion(ver.Version())
	if err != nil {
		return &ConfigurationError{
			Reason: fmt.Sprintf("function %q: handler version %q", spec.Name, ver.Version()),
			Err:    err,
		}
	}
	if !c.Check(v) {
		return &ConfigurationError{
			Reason: fmt.Sprintf("function %q: handler version %s does not satisfy compat %q", spec.Name, v, spec.Compat),
		}
	}
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (function.Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// CodeDir returns the absolute code directory of the named function.
func (r *Registry) CodeDir(name string) (string, bool) {
	d, ok := r.codeDirs[name]
	return d, ok
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int { return len(r.handlers) }
