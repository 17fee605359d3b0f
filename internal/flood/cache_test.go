package flood

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

func TestCachedEngine_HitsPerFit(t *testing.T) {
	c := NewCachedEngine(NewEngine(street, domain.HeightModel{}, 20, testLogger()), 4)
	tr := &planeTransformer{gen: 1, ver: 3}

	first, hit, err := c.BuildOverlay(device, tr)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.BuildOverlay(device, tr)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, tr.calls)

	tr.ver = 4
	_, hit, err = c.BuildOverlay(device, tr)
	require.NoError(t, err)
	assert.False(t, hit, "a refit invalidates the entry")
	assert.Equal(t, 2, tr.calls)
}

func TestCachedEngine_ErrorsAreNotCached(t *testing.T) {
	c := NewCachedEngine(NewEngine(street, domain.HeightModel{}, 20, testLogger()), 4)
	tr := &planeTransformer{err: domain.ErrTransformUnavailable}

	_, _, err := c.BuildOverlay(device, tr)
	require.Error(t, err)

	tr.err = nil
	_, hit, err := c.BuildOverlay(device, tr)
	require.NoError(t, err)
	assert.False(t, hit)
}

func key(n int64) overlayKey { return overlayKey{lon: n} }

func TestOverlayCache_Eviction(t *testing.T) {
	c := newOverlayCache(2)

	c.put(key(1), Overlay{CameraGroundHeight: 1})
	c.put(key(2), Overlay{CameraGroundHeight: 2})
	c.put(key(3), Overlay{CameraGroundHeight: 3}) // evicts 1

	_, ok := c.get(key(1))
	assert.False(t, ok, "oldest entry should have been evicted")
	assert.Equal(t, 2, c.len())

	got, ok := c.get(key(2))
	assert.True(t, ok)
	assert.InDelta(t, 2, got.CameraGroundHeight, 0)
}

func TestOverlayCache_AccessPromotesEntry(t *testing.T) {
	c := newOverlayCache(2)

	c.put(key(1), Overlay{})
	c.put(key(2), Overlay{})
	c.get(key(1))
	c.put(key(3), Overlay{})

	_, ok := c.get(key(1))
	assert.True(t, ok, "recently read entry should survive")
	_, ok = c.get(key(2))
	assert.False(t, ok)
}

func TestOverlayCache_Replace(t *testing.T) {
	c := newOverlayCache(2)
	c.put(key(1), Overlay{CameraGroundHeight: 1})
	c.put(key(1), Overlay{CameraGroundHeight: 7})

	got, ok := c.get(key(1))
	require.True(t, ok)
	assert.InDelta(t, 7, got.CameraGroundHeight, 0)
	assert.Equal(t, 1, c.len())
}

func TestOverlayCache_Disabled(t *testing.T) {
	c := newOverlayCache(0)
	c.put(key(1), Overlay{})
	_, ok := c.get(key(1))
	assert.False(t, ok)
}

func TestKeyFor_RoundsToMicroDegrees(t *testing.T) {
	tr := &planeTransformer{gen: 2, ver: 5}
	a := keyFor(domain.GeoPoint{Longitude: 13.2000004, Latitude: 55.7}, tr)
	b := keyFor(domain.GeoPoint{Longitude: 13.2000001, Latitude: 55.7, Altitude: 40}, tr)
	assert.Equal(t, a, b)

	c := keyFor(domain.GeoPoint{Longitude: 13.200002, Latitude: 55.7}, tr)
	assert.NotEqual(t, a, c)
}
