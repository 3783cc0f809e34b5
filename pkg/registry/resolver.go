package registry

import (
	"fmt"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/fnhost/fnhost/pkg/function"
)

// Resolver turns a handler reference from configuration into a handler
// instance. The dispatcher never depends on which resolver produced an
// instance; resolution strategy is chosen at startup.
type Resolver interface {
	Resolve(handlerRef, codeDir string) (function.Handler, error)
}

// StaticResolver resolves handler references from an explicit factory table.
// It serves compiled-in handlers and tests; the table is fixed at
// construction, there is no ambient registration.
type StaticResolver struct {
	factories map[string]function.Factory
}

// NewStaticResolver creates a resolver over the given factory table.
func NewStaticResolver(factories map[string]function.Factory) *StaticResolver {
	copied := make(map[string]function.Factory, len(factories))
	for ref, f := range factories {
		copied[ref] = f
	}
	return &StaticResolver{factories: copied}
}

func (r *StaticResolver) Resolve(handlerRef, codeDir string) (function.Handler, error) {
	f, ok := r.factories[handlerRef]
	if !ok {
		return nil, fmt.Errorf("no factory registered for handler %q", handlerRef)
	}
	return f(), nil
}

// PluginResolver loads handlers from Go plugins under the function's code
// directory. A reference "echo.Handler" opens codeDir/echo.so and looks up
// the exported symbol Handler, which must be a function.Handler, a pointer to
// one, or a function.Factory.
type PluginResolver struct{}

func (PluginResolver) Resolve(handlerRef, codeDir string) (function.Handler, error) {
	dot := strings.LastIndex(handlerRef, ".")
	if dot <= 0 || dot == len(handlerRef)-1 {
		return nil, fmt.Errorf("handler reference %q is not of the form file.Symbol", handlerRef)
	}
	file, symbol := handlerRef[:dot], handlerRef[dot+1:]

	path := filepath.Join(codeDir, file+".so")
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("lookup symbol %s in %s: %w", symbol, path, err)
	}

	switch v := sym.(type) {
	case function.Handler:
		return v, nil
	case *function.Handler:
		return *v, nil
	case func() function.Handler:
		return v(), nil
	default:
		return nil, fmt.Errorf("symbol %s in %s has type %T, want function.Handler or factory", symbol, path, sym)
	}
}

// ChainResolver tries each resolver in order and returns the first success.
type ChainResolver []Resolver

func (c ChainResolver) Resolve(handlerRef, codeDir string) (function.Handler, error) {
	var lastErr error
	for _, r := range c {
		h, err := r.Resolve(handlerRef, codeDir)
		if err == nil {
			return h, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty resolver chain")
	}
	return nil, lastErr
}
