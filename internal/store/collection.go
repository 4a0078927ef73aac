package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInvalidReference is returned by Create when a foreign key points at a
// record that does not exist.
var ErrInvalidReference = errors.New("referenced record does not exist")

// ErrTransient marks a simulated I/O failure. Callers should treat it as
// retryable and must not assume the operation took effect.
var ErrTransient = errors.New("transient store failure")

// ErrNoForeignKey is returned by GetByForeignKey on a collection whose records
// carry no parent reference.
var ErrNoForeignKey = errors.New("collection has no foreign key")

// Op names a collection operation. It keys latency and fault injection.
type Op string

const (
	OpGetAll          Op = "getAll"
	OpGetByID         Op = "getById"
	OpGetByForeignKey Op = "getByForeignKey"
	OpCreate          Op = "create"
	OpUpdate          Op = "update"
	OpDelete          Op = "delete"
)

// Latency maps each operation to the delay a collection waits before serving
// it. Missing entries mean no delay.
type Latency map[Op]time.Duration

// SimulatedLatency mirrors the response times of the hosted backend the chat
// UI was first built against.
func SimulatedLatency() Latency {
	return Latency{
		OpGetAll:          300 * time.Millisecond,
		OpGetByID:         200 * time.Millisecond,
		OpGetByForeignKey: 200 * time.Millisecond,
		OpCreate:          400 * time.Millisecond,
		OpUpdate:          300 * time.Millisecond,
		OpDelete:          250 * time.Millisecond,
	}
}

// FaultFunc is consulted before every operation. A non-nil return aborts the
// operation with that error wrapped around [ErrTransient]. entity is the
// collection name ("conversations", "messages", "corrections").
type FaultFunc func(entity string, op Op) error

// schema tells a generic [Collection] how to read and write the fields it
// manages on T.
type schema[T any] struct {
	name   string
	id     func(T) int
	setID  func(*T, int)
	parent func(T) int // nil when T has no foreign key
}

// Collection is a thread-safe, in-memory, insertion-ordered set of records.
//
// Ids are assigned by [Collection.Create] from a high-water mark, so they are
// strictly increasing and never reused, even after the newest record is
// deleted. Every method returns copies; mutating a returned value never
// affects the collection.
type Collection[T any] struct {
	schema  schema[T]
	latency Latency
	fault   FaultFunc
	exists  func(parentID int) bool

	mu      sync.RWMutex
	records []T
	lastID  int
}

func newCollection[T any](s schema[T], latency Latency, fault FaultFunc) *Collection[T] {
	return &Collection[T]{schema: s, latency: latency, fault: fault}
}

// Name returns the collection name used in errors and fault injection.
func (c *Collection[T]) Name() string { return c.schema.name }

// GetAll returns every record in insertion order.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := c.wait(ctx, OpGetAll); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, len(c.records))
	copy(out, c.records)
	return out, nil
}

// GetByID returns the record with the given id or [ErrNotFound].
func (c *Collection[T]) GetByID(ctx context.Context, id int) (T, error) {
	var zero T
	if err := c.wait(ctx, OpGetByID); err != nil {
		return zero, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.indexOf(id)
	if i < 0 {
		return zero, fmt.Errorf("store: %s %d: %w", c.schema.name, id, ErrNotFound)
	}
	return c.records[i], nil
}

// GetByForeignKey returns all records whose parent reference equals
// parentID, in insertion order. Messages are keyed by conversation id,
// corrections by message id.
func (c *Collection[T]) GetByForeignKey(ctx context.Context, parentID int) ([]T, error) {
	if c.schema.parent == nil {
		return nil, fmt.Errorf("store: %s: %w", c.schema.name, ErrNoForeignKey)
	}
	if err := c.wait(ctx, OpGetByForeignKey); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []T
	for _, r := range c.records {
		if c.schema.parent(r) == parentID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Create stores rec under a freshly assigned id and returns the stored copy.
// Any id already set on rec is ignored. When the collection has a foreign
// key, the referenced parent must exist or [ErrInvalidReference] is returned.
func (c *Collection[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := c.wait(ctx, OpCreate); err != nil {
		return zero, err
	}

	if c.schema.parent != nil && c.exists != nil {
		if pid := c.schema.parent(rec); !c.exists(pid) {
			return zero, fmt.Errorf("store: create %s: parent %d: %w", c.schema.name, pid, ErrInvalidReference)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastID++
	c.schema.setID(&rec, c.lastID)
	c.records = append(c.records, rec)
	return rec, nil
}

// Update applies patch to the record with the given id and returns the
// updated copy, or [ErrNotFound].
func (c *Collection[T]) Update(ctx context.Context, id int, patch Patch[T]) (T, error) {
	var zero T
	if err := c.wait(ctx, OpUpdate); err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return zero, fmt.Errorf("store: update %s %d: %w", c.schema.name, id, ErrNotFound)
	}
	patch.apply(&c.records[i])
	return c.records[i], nil
}

// Delete removes the record with the given id. It reports false when no such
// record exists.
func (c *Collection[T]) Delete(ctx context.Context, id int) (bool, error) {
	if err := c.wait(ctx, OpDelete); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return false, nil
	}
	c.records = append(c.records[:i], c.records[i+1:]...)
	return true, nil
}

// Len returns the number of stored records without simulated latency.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// has reports whether id is present, bypassing latency and faults. It backs
// foreign key checks of child collections.
func (c *Collection[T]) has(id int) bool {
	_, ok := c.peek(id)
	return ok
}

// peek returns the record with the given id, bypassing latency and faults.
func (c *Collection[T]) peek(id int) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	i := c.indexOf(id)
	if i < 0 {
		return zero, false
	}
	return c.records[i], true
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// indexOf returns the slice position of id or -1. Callers hold c.mu.
func (c *Collection[T]) indexOf(id int) int {
	for i, r := range c.records {
		if c.schema.id(r) == id {
			return i
		}
	}
	return -1
}

// wait applies fault injection and the configured latency for op.
func (c *Collection[T]) wait(ctx context.Context, op Op) error {
	if c.fault != nil {
		if err := c.fault(c.schema.name, op); err != nil {
			return fmt.Errorf("store: %s %s: %w: %w", op, c.schema.name, ErrTransient, err)
		}
	}

	d := c.latency[op]
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("store: %s %s: %w", op, c.schema.name, ctx.Err())
	case <-t.C:
		return nil
	}
}
