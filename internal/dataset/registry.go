package dataset

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// NotFoundError names the dataset a request asked for but the session lacks.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset %q not loaded in this session", e.Name)
}

// Registry holds the session's named datasets. Writes (loading new datasets)
// are single-writer; reads hand out schema snapshots and deep copies so that
// no sandboxed execution can mutate the canonical values.
type Registry struct {
	mu     sync.RWMutex
	sets   map[string]*Dataset
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{sets: make(map[string]*Dataset), logger: logger}
}

// Put registers a dataset, replacing any previous dataset of the same name.
func (r *Registry) Put(d *Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[d.Name] = d
	r.logger.Info("dataset registered",
		zap.String("name", d.Name),
		zap.Int("rows", d.RowCount()),
		zap.Int("columns", len(d.Header)))
}

// Get returns the canonical dataset. Callers must not hand it to a sandbox;
// use Snapshot for that.
func (r *Registry) Get(name string) (*Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sets[name]
	return d, ok
}

// Remove drops a dataset from the session.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[name]; !ok {
		return false
	}
	delete(r.sets, name)
	return true
}

// List returns the registered dataset names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sets))
	for n := range r.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schemas returns summaries for the named datasets, in the given order.
func (r *Registry) Schemas(names []string) ([]SchemaSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SchemaSummary, 0, len(names))
	for _, n := range names {
		d, ok := r.sets[n]
		if !ok {
			return nil, &NotFoundError{Name: n}
		}
		out = append(out, d.Schema())
	}
	return out, nil
}

// Snapshot returns deep copies of exactly the named datasets. Datasets not
// named are not exposed, and mutations of the copies cannot reach the session.
func (r *Registry) Snapshot(names []string) (map[string]*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Dataset, len(names))
	for _, n := range names {
		d, ok := r.sets[n]
		if !ok {
			return nil, &NotFoundError{Name: n}
		}
		out[n] = d.Copy()
	}
	return out, nil
}

// SetDescription attaches a description to a loaded dataset (used by the
// describe command). The cached schema is invalidated.
func (r *Registry) SetDescription(name, desc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.sets[name]
	if !ok {
		return &NotFoundError{Name: name}
	}
	d.Description = desc
	d.schema = nil
	return nil
}
