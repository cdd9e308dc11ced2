package burrow

import (
	"plugin"
	"sync"
)

// PluginType distinguishes predicate plugins from aggregate plugins.
type PluginType int

const (
	// PluginPredicate plugins filter records; Pred is required.
	PluginPredicate PluginType = 1

	// PluginAggregate plugins fold records into a result; AggSingle and
	// AggMany are required.
	PluginAggregate PluginType = 2
)

// Plugin function signatures.
type (
	// PluginInitFunc creates per-query state.
	PluginInitFunc func() (state interface{}, err error)

	// PluginPredicateFunc decides whether a key/record pair passes.
	PluginPredicateFunc func(state interface{}, key, record []byte) bool

	// PluginAggregateSingleFunc folds one key/record pair.
	PluginAggregateSingleFunc func(state interface{}, key, record []byte)

	// PluginAggregateManyFunc folds a batch of pairs.
	PluginAggregateManyFunc func(state interface{}, keys, records [][]byte)

	// PluginResultFunc extracts the final result.
	PluginResultFunc func(state interface{}) ([]byte, error)
)

// Plugin describes a user-defined predicate or aggregate function.
// Version must be 0.
type Plugin struct {
	Name    string
	Version int
	Type    PluginType

	Init      PluginInitFunc
	Pred      PluginPredicateFunc
	AggSingle PluginAggregateSingleFunc
	AggMany   PluginAggregateManyFunc
	Results   PluginResultFunc
}

// PluginFactory is the signature of the factory symbol a plugin library
// exports.
type PluginFactory = func(name string) *Plugin

// pluginFactorySymbol is the exported factory looked up in plugin
// libraries. Go plugin symbol tables only carry exported names.
const pluginFactorySymbol = "PluginDescriptor"

// PluginRegistry is the append-only registry of predicate and aggregate
// plugins. Two mutexes, one for the retained library handles and one for
// the name mapping, mirror the locking granularity the registry needs:
// Import touches both in turn, Cleanup only the handles.
type PluginRegistry struct {
	logger Logger

	handleMu sync.Mutex
	handles  []*plugin.Plugin

	mu      sync.Mutex
	plugins map[string]Plugin

	// onRegister, if set, observes the registry size after each
	// successful Add.
	onRegister func(count int)
}

// NewPluginRegistry creates an empty registry.
func NewPluginRegistry(logger Logger) *PluginRegistry {
	if logger == nil {
		logger = DefaultLogger
	}
	return &PluginRegistry{
		logger:  logger,
		plugins: make(map[string]Plugin),
	}
}

// Import loads a plugin library, calls its exported PluginDescriptor
// factory with pluginName and registers the result. Every failure mode —
// open, symbol lookup, a nil descriptor, registration rejection — reports
// ErrPluginNotFound with a logged cause.
func (r *PluginRegistry) Import(library, pluginName string) error {
	dl, err := plugin.Open(library)
	if err != nil {
		r.logger.Errorf("burrow: failed to open library %s: %v", library, err)
		return NewError(ErrPluginNotFound)
	}

	// retain the handle; plugin libraries stay loaded for the process
	// lifetime (their function pointers must not be invalidated)
	r.handleMu.Lock()
	r.handles = append(r.handles, dl)
	r.handleMu.Unlock()

	sym, err := dl.Lookup(pluginFactorySymbol)
	if err != nil {
		r.logger.Errorf("burrow: failed to load exported symbol from library %s: %v",
			library, err)
		return NewError(ErrPluginNotFound)
	}

	factory, ok := sym.(PluginFactory)
	if !ok {
		if pf, isPtr := sym.(*PluginFactory); isPtr {
			factory = *pf
		} else {
			r.logger.Errorf("burrow: symbol %s in library %s has wrong type",
				pluginFactorySymbol, library)
			return NewError(ErrPluginNotFound)
		}
	}

	p := factory(pluginName)
	if p == nil {
		r.logger.Errorf("burrow: failed to load plugin %s from library %s",
			pluginName, library)
		return NewError(ErrPluginNotFound)
	}

	return r.Add(p)
}

// Add validates a descriptor and registers it under its name. A name
// already registered silently keeps the first entry. Wrong version,
// unknown type and missing required functions all report
// ErrPluginNotFound.
func (r *PluginRegistry) Add(p *Plugin) error {
	if p.Version != 0 {
		r.logger.Errorf("burrow: failed to load plugin %s: invalid version (%d != 0)",
			p.Name, p.Version)
		return NewError(ErrPluginNotFound)
	}

	switch p.Type {
	case PluginPredicate:
		if p.Pred == nil {
			r.logger.Errorf("burrow: failed to load predicate plugin %s: 'Pred' "+
				"function must not be nil", p.Name)
			return NewError(ErrPluginNotFound)
		}
	case PluginAggregate:
		if p.AggSingle == nil {
			r.logger.Errorf("burrow: failed to load aggregate plugin %s: 'AggSingle' "+
				"function must not be nil", p.Name)
			return NewError(ErrPluginNotFound)
		}
		if p.AggMany == nil {
			r.logger.Errorf("burrow: failed to load aggregate plugin %s: 'AggMany' "+
				"function must not be nil", p.Name)
			return NewError(ErrPluginNotFound)
		}
	default:
		r.logger.Errorf("burrow: failed to load plugin %s: unknown type %d",
			p.Name, p.Type)
		return NewError(ErrPluginNotFound)
	}

	r.mu.Lock()
	if _, exists := r.plugins[p.Name]; !exists {
		r.plugins[p.Name] = *p
	}
	count := len(r.plugins)
	r.mu.Unlock()

	if r.onRegister != nil {
		r.onRegister(count)
	}
	return nil
}

// IsRegistered reports whether a plugin name is registered.
func (r *PluginRegistry) IsRegistered(name string) bool {
	return r.Get(name) != nil
}

// Get returns a copy of the named descriptor, or nil.
func (r *PluginRegistry) Get(name string) *Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil
	}
	return &p
}

// Predicate builds a predicate descriptor. No registry side effects.
func Predicate(name string, init PluginInitFunc, pred PluginPredicateFunc,
	results PluginResultFunc) Plugin {
	return Plugin{
		Name:    name,
		Type:    PluginPredicate,
		Init:    init,
		Pred:    pred,
		Results: results,
	}
}

// Aggregate builds an aggregate descriptor. No registry side effects.
func Aggregate(name string, init PluginInitFunc,
	aggSingle PluginAggregateSingleFunc, aggMany PluginAggregateManyFunc,
	results PluginResultFunc) Plugin {
	return Plugin{
		Name:      name,
		Type:      PluginAggregate,
		Init:      init,
		AggSingle: aggSingle,
		AggMany:   aggMany,
		Results:   results,
	}
}

// Cleanup drops the retained library handles. Go plugins cannot be
// unloaded, so this only releases the references; registered descriptors
// stay valid until process teardown.
func (r *PluginRegistry) Cleanup() {
	r.handleMu.Lock()
	r.handles = nil
	r.handleMu.Unlock()
}
