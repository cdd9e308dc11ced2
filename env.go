package burrow

import "github.com/prometheus/client_golang/prometheus"

// Env is the environment shared by all databases: the allocator, the blob
// store backing records and duplicate tables, the pager, the plugin
// registry, logging and metrics.
type Env struct {
	alloc     *allocator
	blobs     *blobStore
	pager     *pager
	logger    Logger
	metrics   *Metrics
	plugins   *PluginRegistry
	lastTxnID uint64

	cacheSize int
	maxKeys   int
	heapPath  string
	closed    bool
}

// EnvOption configures an environment at creation time.
type EnvOption func(*Env)

// WithCacheSize bounds the number of resident pages. Pages beyond the bound
// are evicted after their cursors have been uncoupled.
func WithCacheSize(n int) EnvOption {
	return func(e *Env) { e.cacheSize = n }
}

// WithLogger replaces the default logger.
func WithLogger(l Logger) EnvOption {
	return func(e *Env) { e.logger = l }
}

// WithHeapPath places the blob heap file at path instead of a temporary
// file. The file is created if absent and kept on Close.
func WithHeapPath(path string) EnvOption {
	return func(e *Env) { e.heapPath = path }
}

// WithMaxKeysPerPage overrides the reference backend's fan-out. Small
// values force multi-page trees; useful in tests.
func WithMaxKeysPerPage(n int) EnvOption {
	return func(e *Env) { e.maxKeys = n }
}

// WithMaxAllocation bounds a single allocator request; larger requests
// report ErrOutOfMemory.
func WithMaxAllocation(n int) EnvOption {
	return func(e *Env) { e.alloc.maxAlloc = n }
}

// NewEnv creates an environment.
func NewEnv(opts ...EnvOption) (*Env, error) {
	e := &Env{
		alloc:     newAllocator(0),
		logger:    DefaultLogger,
		metrics:   newMetrics(),
		cacheSize: DefaultCacheSize,
		maxKeys:   DefaultMaxKeysPerPage,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pager = newPager(e, e.cacheSize)
	e.plugins = NewPluginRegistry(e.logger)
	e.plugins.onRegister = func(count int) {
		e.metrics.PluginsRegistered.Set(float64(count))
	}
	blobs, err := openBlobStore(e, e.heapPath)
	if err != nil {
		return nil, err
	}
	e.blobs = blobs
	return e, nil
}

// CreateDb creates a database backed by a fresh B-tree.
func (e *Env) CreateDb() (*Db, error) {
	if e.closed {
		return nil, NewError(ErrNotInitialized)
	}
	db := &Db{env: e}
	db.be = newBtree(db, e.maxKeys)
	return db, nil
}

// Logger returns the environment's logger.
func (e *Env) Logger() Logger {
	return e.logger
}

// Metrics returns the environment's metrics.
func (e *Env) Metrics() *Metrics {
	return e.metrics
}

// Collectors returns the environment's Prometheus collectors.
func (e *Env) Collectors() []prometheus.Collector {
	return e.metrics.Collectors()
}

// Plugins returns the environment's plugin registry.
func (e *Env) Plugins() *PluginRegistry {
	return e.plugins
}

// Close releases the environment: plugin library handles are dropped and
// the blob heap is closed. Idempotent.
func (e *Env) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.plugins.Cleanup()
	return e.blobs.close()
}
