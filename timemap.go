package timemap

import (
	"container/list"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/SlimIO/TimeMap/clock"
	"github.com/SlimIO/TimeMap/schedule"
)

// Key constrains map keys to the supported kinds: strings, including
// named string types used as opaque symbolic identifiers, and integers.
// Any other kind is rejected at compile time.
type Key interface {
	~string | ~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// TimeMap is a key/value store whose entries share one fixed lifetime.
// An entry not set or refreshed within that lifetime is evicted and
// announced through the OnExpiration handler just before removal. At any
// moment at most one timer is armed, belonging to the entry with the
// oldest touch time.
type TimeMap[K Key, V any] struct {
	config  Config
	loader  Loader[K, V]
	events  EventHandlers[K, V]
	metrics *Metrics

	mu      sync.Mutex
	clock   clock.Clock
	entries map[K]*entry[V]
	order   *list.List
	index   map[K]*list.Element
	queue   *schedule.Queue[K]
	seq     uint64

	current  K
	armed    bool
	timer    clock.Timer
	timerGen uint64

	closed bool
}

type entry[V any] struct {
	value     V
	touchedAt time.Time
	seq       uint64
}

type Option[K Key, V any] func(*TimeMap[K, V])

func WithClock[K Key, V any](c clock.Clock) Option[K, V] {
	return func(m *TimeMap[K, V]) { m.clock = c }
}

func WithLoader[K Key, V any](loader Loader[K, V]) Option[K, V] {
	return func(m *TimeMap[K, V]) { m.loader = loader }
}

func WithEventHandlers[K Key, V any](handlers EventHandlers[K, V]) Option[K, V] {
	return func(m *TimeMap[K, V]) { m.events = handlers }
}

func New[K Key, V any](cfg Config, opts ...Option[K, V]) (*TimeMap[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.TimeLife == 0 {
		cfg.TimeLife = DefaultTimeLife
	}

	m := &TimeMap[K, V]{
		config:  cfg,
		clock:   clock.Real(),
		metrics: &Metrics{},
		entries: make(map[K]*entry[V]),
		order:   list.New(),
		index:   make(map[K]*list.Element),
		queue:   schedule.New[K](),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Set inserts key or overwrites its value, resetting the entry lifetime
// either way.
func (m *TimeMap[K, V]) Set(key K, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.setLocked(key, value)
	return nil
}

func (m *TimeMap[K, V]) setLocked(key K, value V) {
	now := m.clock.Now()

	if e, ok := m.entries[key]; ok {
		e.value = value
		e.touchedAt = now
		m.queue.Touch(key, now, e.seq)
	} else {
		m.seq++
		m.entries[key] = &entry[V]{value: value, touchedAt: now, seq: m.seq}
		m.index[key] = m.order.PushBack(key)
		m.queue.Touch(key, now, m.seq)
	}
	m.metrics.Sets.Add(1)

	if m.events.OnSet != nil {
		m.events.OnSet(key, value)
	}

	m.rearm()
}

// Has reports whether key is present. It does not refresh the entry.
func (m *TimeMap[K, V]) Has(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	if _, ok := m.entries[key]; ok {
		m.metrics.Hits.Add(1)
		return true
	}
	m.metrics.Misses.Add(1)
	return false
}

// Refresh reports whether key is present and, when it is, resets its
// lifetime as if it had just been set.
func (m *TimeMap[K, V]) Refresh(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	e, ok := m.entries[key]
	if !ok {
		m.metrics.Misses.Add(1)
		return false
	}

	m.metrics.Hits.Add(1)
	m.touch(key, e)
	return true
}

// Get returns the stored value, or ErrKeyNotFound for an absent key.
func (m *TimeMap[K, V]) Get(key K) (V, error) {
	return m.get(key, false)
}

// GetAndRefresh returns the stored value and resets the entry lifetime.
func (m *TimeMap[K, V]) GetAndRefresh(key K) (V, error) {
	return m.get(key, true)
}

func (m *TimeMap[K, V]) get(key K, refresh bool) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	if m.closed {
		return zero, ErrClosed
	}

	e, ok := m.entries[key]
	if !ok {
		m.metrics.Misses.Add(1)
		return zero, ErrKeyNotFound
	}

	m.metrics.Hits.Add(1)
	if refresh {
		m.touch(key, e)
	}
	return e.value, nil
}

func (m *TimeMap[K, V]) touch(key K, e *entry[V]) {
	e.touchedAt = m.clock.Now()
	m.queue.Touch(key, e.touchedAt, e.seq)
	m.metrics.Refreshes.Add(1)

	// Refreshing any other key only pushes its deadline further out, so
	// the armed timer stays correct unless the current key moved.
	if m.armed && m.current == key {
		m.rearm()
	}
}

// GetOrLoad returns the stored value, falling back to the configured
// loader on a miss and inserting the loaded value with a fresh lifetime.
func (m *TimeMap[K, V]) GetOrLoad(key K) (V, error) {
	m.mu.Lock()

	var zero V
	if m.closed {
		m.mu.Unlock()
		return zero, ErrClosed
	}

	if e, ok := m.entries[key]; ok {
		m.metrics.Hits.Add(1)
		value := e.value
		m.mu.Unlock()
		return value, nil
	}
	m.metrics.Misses.Add(1)

	if m.loader == nil {
		m.mu.Unlock()
		return zero, ErrKeyNotFound
	}

	m.mu.Unlock()
	value, err := m.loader.Load(key)
	if err != nil {
		return zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return zero, ErrClosed
	}

	// Another caller may have set the key while the loader ran.
	if e, ok := m.entries[key]; ok {
		return e.value, nil
	}

	m.setLocked(key, value)
	return value, nil
}

// Delete removes key unconditionally, reporting whether it was present.
// Explicit deletion emits no expiration notification.
func (m *TimeMap[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	e, ok := m.entries[key]
	if !ok {
		return false
	}

	wasCurrent := m.armed && m.current == key
	m.removeEntry(key)
	m.metrics.Deletes.Add(1)

	if m.events.OnDelete != nil {
		m.events.OnDelete(key, e.value)
	}

	if wasCurrent {
		m.rearm()
	}
	return true
}

// Clear cancels the armed timer and drops every entry, returning the map
// to its freshly constructed state. Idempotent.
func (m *TimeMap[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelTimer()
	m.entries = make(map[K]*entry[V])
	m.order.Init()
	m.index = make(map[K]*list.Element)
	m.queue.Clear()
}

// Keys returns a restartable iterator over the keys in insertion order.
// Each restart observes the map as of that moment.
func (m *TimeMap[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.mu.Lock()
		keys := make([]K, 0, m.order.Len())
		for elem := m.order.Front(); elem != nil; elem = elem.Next() {
			keys = append(keys, elem.Value.(K))
		}
		m.mu.Unlock()

		for _, key := range keys {
			if !yield(key) {
				return
			}
		}
	}
}

func (m *TimeMap[K, V]) Range(fn func(key K, value V) bool) {
	type pair struct {
		key   K
		value V
	}

	m.mu.Lock()
	pairs := make([]pair, 0, m.order.Len())
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		key := elem.Value.(K)
		pairs = append(pairs, pair{key: key, value: m.entries[key].value})
	}
	m.mu.Unlock()

	for _, p := range pairs {
		if !fn(p.key, p.value) {
			return
		}
	}
}

func (m *TimeMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// TimeLife returns the uniform entry lifetime fixed at construction.
func (m *TimeMap[K, V]) TimeLife() time.Duration {
	return m.config.TimeLife
}

func (m *TimeMap[K, V]) Metrics() MetricsSnapshot {
	return m.metrics.Snapshot()
}

func (m *TimeMap[K, V]) ResetMetrics() {
	m.metrics.Reset()
}

// Close cancels the armed timer and rejects further operations.
// Idempotent.
func (m *TimeMap[K, V]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.cancelTimer()
	return nil
}

// rearm re-derives which entry expires next. Entries whose lifetime has
// already elapsed are swept out immediately, each with its expiration
// notification; this catches up after periods where timers could not
// fire promptly. One timer is then armed for the remaining lifetime of
// the oldest survivor, or none when the map is empty. Caller must hold
// m.mu.
func (m *TimeMap[K, V]) rearm() {
	m.cancelTimer()

	for {
		key, touchedAt, ok := m.queue.Oldest()
		if !ok {
			return
		}

		remaining := m.config.TimeLife - m.clock.Since(touchedAt)
		if remaining > 0 {
			m.armTimer(key, remaining)
			return
		}

		m.expire(key)
		if m.closed {
			return
		}
	}
}

// expire emits the expiration notification for key and deletes its
// entry. The lock is released during delivery so the handler can call
// back into the map; the entry leaves the schedule queue first, keeping
// delivery at-most-once. Caller must hold m.mu.
func (m *TimeMap[K, V]) expire(key K) {
	m.queue.Remove(key)

	e, ok := m.entries[key]
	if !ok {
		return
	}

	m.metrics.Expirations.Add(1)
	touched := e.touchedAt

	if handler := m.events.OnExpiration; handler != nil {
		m.mu.Unlock()
		handler(key, e.value)
		m.mu.Lock()
	}

	// The handler may have deleted, replaced or refreshed the key; only
	// the entry the notification was emitted for is removed.
	if cur, ok := m.entries[key]; ok && cur == e && cur.touchedAt.Equal(touched) {
		m.removeEntry(key)
	}
}

func (m *TimeMap[K, V]) removeEntry(key K) {
	delete(m.entries, key)
	m.queue.Remove(key)
	if elem, ok := m.index[key]; ok {
		m.order.Remove(elem)
		delete(m.index, key)
	}
}

func (m *TimeMap[K, V]) armTimer(key K, d time.Duration) {
	m.cancelTimer()
	m.current = key
	m.armed = true
	gen := m.timerGen
	m.timer = m.clock.AfterFunc(d, func() { m.onTimer(gen) })
}

// cancelTimer is idempotent and also invalidates a timer that fired but
// whose callback has not run yet.
func (m *TimeMap[K, V]) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
	m.armed = false
	var zero K
	m.current = zero
}

func (m *TimeMap[K, V]) onTimer(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A superseded timer must not expire anything.
	if m.closed || gen != m.timerGen {
		return
	}
	m.rearm()
}
