package flood

import (
	"container/list"
	"math"
	"sync"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// FittedTransformer is a Transformer that identifies the fit it applies.
// Two transformers with equal generation and version produce the same output.
type FittedTransformer interface {
	Transformer
	Generation() uint64
	Version() uint64
}

// CachedEngine memoizes overlays per fit and device position.
type CachedEngine struct {
	inner *Engine
	cache *overlayCache
}

// NewCachedEngine wraps e with an LRU cache of maxEntries overlays.
// maxEntries <= 0 disables caching.
func NewCachedEngine(e *Engine, maxEntries int) *CachedEngine {
	return &CachedEngine{inner: e, cache: newOverlayCache(maxEntries)}
}

// Engine returns the wrapped engine.
func (c *CachedEngine) Engine() *Engine { return c.inner }

// BuildOverlay returns the cached overlay for the fit and the device position
// rounded to 1e-6 degrees, building it on a miss. hit reports a cache hit.
func (c *CachedEngine) BuildOverlay(device domain.GeoPoint, t FittedTransformer) (ov Overlay, hit bool, err error) {
	key := keyFor(device, t)
	if ov, ok := c.cache.get(key); ok {
		return ov, true, nil
	}
	ov, err = c.inner.BuildOverlay(device, t)
	if err != nil {
		return ov, false, err
	}
	c.cache.put(key, ov)
	return ov, false, nil
}

// overlayKey identifies an overlay: the fit that placed it and the device
// position in micro-degrees.
type overlayKey struct {
	generation, version uint64
	lon, lat            int64
}

func keyFor(device domain.GeoPoint, t FittedTransformer) overlayKey {
	return overlayKey{
		generation: t.Generation(),
		version:    t.Version(),
		lon:        int64(math.Round(device.Longitude * 1e6)),
		lat:        int64(math.Round(device.Latitude * 1e6)),
	}
}

type cached struct {
	key overlayKey
	ov  Overlay
}

// overlayCache is a mutex-guarded LRU. The front of order is the most
// recently used entry.
type overlayCache struct {
	max   int
	mu    sync.Mutex
	order *list.List
	index map[overlayKey]*list.Element
}

func newOverlayCache(maxEntries int) *overlayCache {
	return &overlayCache{
		max:   maxEntries,
		order: list.New(),
		index: make(map[overlayKey]*list.Element),
	}
}

func (c *overlayCache) get(k overlayKey) (Overlay, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[k]
	if !ok {
		return Overlay{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cached).ov, true
}

func (c *overlayCache) put(k overlayKey, ov Overlay) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[k]; ok {
		el.Value.(*cached).ov = ov
		c.order.MoveToFront(el)
		return
	}
	c.index[k] = c.order.PushFront(&cached{key: k, ov: ov})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cached).key)
	}
}

func (c *overlayCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
