package engine

import (
	"slices"

	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/store"
)

// Stats are the counters of a query cache.
type Stats struct {
	// Segments is the current number of cache segments.
	Segments int
	// Rebuilds counts segment evaluations, the first population included.
	Rebuilds int64
	// Hits counts segments served without evaluation.
	Hits int64
	// Events counts store events drained from the queue.
	Events int64
	// Generation is the logical time of the last refresh.
	Generation int64
}

// CacheState is the lifecycle state of a query cache.
type CacheState int

const (
	// CacheUninitialized: no iteration has populated the cache yet.
	CacheUninitialized CacheState = iota
	// CachePopulated: every segment is current.
	CachePopulated
	// CacheDirty: store events are pending or segments are stale.
	CacheDirty
)

func (s CacheState) String() string {
	switch s {
	case CacheUninitialized:
		return "uninitialized"
	case CachePopulated:
		return "populated"
	case CacheDirty:
		return "dirty"
	}
	return "unknown"
}

// segment is the cached rows produced from one owner table of the first
// term, or from the whole query when the first step is not a $this select.
type segment struct {
	owner *store.Table
	rows  []row
	deps  *deps
	stale bool
}

// cache maintains the rows of a query incrementally.
//
// Store events are enqueued synchronously as they happen and drained on the
// next iteration. An event marks every segment whose recorded dependencies
// it touches as stale; only stale segments are evaluated again. When the
// first step selects $this, rows are partitioned by owner table: a new
// owner table adds a segment and a deleted one drops it.
//
// INVARIANTS:
//   - segments are ordered by owner table id, which is creation order
//   - the concatenated rows equal an uncached evaluation at refresh time
type cache struct {
	q     *Query
	queue *eventQueue

	unsubscribe func()

	// segmented is set when step 0 is a $this select; pattern is its id.
	segmented bool
	pattern   ir.Id

	segments    []*segment
	initialized bool
	counters    Stats
}

func newCache(q *Query) *cache {
	c := &cache{
		q:     q,
		queue: newEventQueue(),
	}
	if m, ok := q.plan.Steps[0].(*queryir.Match); ok && m.Term.Src.IsThis() {
		c.segmented = true
		c.pattern = m.Term.Id
	}
	c.unsubscribe = q.world.Subscribe(store.ObserverFunc(func(ev store.Event) {
		c.queue.Enqueue(ev)
	}))
	return c
}

func (c *cache) state() CacheState {
	if !c.initialized {
		return CacheUninitialized
	}
	if c.queue.Len() > 0 {
		return CacheDirty
	}
	for _, s := range c.segments {
		if s.stale {
			return CacheDirty
		}
	}
	return CachePopulated
}

func (c *cache) stats() Stats {
	s := c.counters
	s.Segments = len(c.segments)
	return s
}

// rows brings the cache up to date and returns its rows in result order.
func (c *cache) rows() []row {
	if !c.initialized {
		c.populate()
	} else {
		c.drain()
	}

	var rebuilt, hits int
	for _, s := range c.segments {
		if s.stale {
			c.rebuild(s)
			rebuilt++
		} else {
			hits++
		}
	}
	c.counters.Rebuilds += int64(rebuilt)
	c.counters.Hits += int64(hits)
	c.counters.Generation = c.q.clock.Next()
	c.q.tel.recordRefresh(rebuilt, hits)
	if rebuilt > 0 {
		c.q.logger.Debug("cache refreshed",
			"query", c.q.Name(),
			"rebuilt", rebuilt,
			"hits", hits,
			"generation", c.counters.Generation)
	}

	var out []row
	for _, s := range c.segments {
		out = append(out, s.rows...)
	}
	return out
}

// populate creates the segments from the current store. Events queued
// before population describe state the segments already reflect.
func (c *cache) populate() {
	c.queue.Clear()
	c.initialized = true
	if !c.segmented {
		c.segments = []*segment{{stale: true}}
		return
	}
	for _, t := range c.q.world.TablesWith(c.pattern) {
		c.segments = append(c.segments, &segment{owner: t, stale: true})
	}
}

// drain applies every queued event.
func (c *cache) drain() {
	n := 0
	for {
		ev, ok := c.queue.TryDequeue()
		if !ok {
			break
		}
		c.apply(ev)
		n++
	}
	c.counters.Events += int64(n)
	c.q.tel.recordEvents(n)
}

func (c *cache) apply(ev store.Event) {
	if c.segmented {
		switch ev.Kind {
		case store.EventTableCreated:
			if ev.Table.HasMatch(c.pattern) {
				c.insert(&segment{owner: ev.Table, stale: true})
			}
		case store.EventTableDeleted:
			c.segments = slices.DeleteFunc(c.segments, func(s *segment) bool {
				return s.owner == ev.Table
			})
		}
	}
	for _, s := range c.segments {
		if !s.stale && s.deps.touchedBy(ev, c.q.world.RelationshipUsed) {
			s.stale = true
		}
	}
}

func (c *cache) insert(s *segment) {
	i, _ := slices.BinarySearchFunc(c.segments, s.owner.ID(), func(x *segment, id store.TableID) int {
		switch {
		case x.owner.ID() < id:
			return -1
		case x.owner.ID() > id:
			return 1
		}
		return 0
	})
	c.segments = slices.Insert(c.segments, i, s)
}

// rebuild evaluates one segment through a recording view.
func (c *cache) rebuild(s *segment) {
	d := newDeps()
	var rows []row
	ev := &evaluator{
		plan: c.q.plan,
		v:    recordingView{worldView: worldView{w: c.q.world}, d: d},
		only: s.owner,
		emit: func(r row) { rows = append(rows, r) },
	}
	ev.run(newFrame(c.q.plan))
	s.rows = rows
	s.deps = d
	s.stale = false
}

func (c *cache) close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.queue.Close()
}
