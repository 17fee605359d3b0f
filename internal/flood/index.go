package flood

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// maxIndexedRadius bounds radius queries answered by the quadtree. Larger
// radii scan the corpus.
const maxIndexedRadius = 50_000.0

type indexedSample struct {
	pos int
	p   orb.Point
}

func (s indexedSample) Point() orb.Point { return s.p }

type index struct {
	tree *quadtree.Quadtree
}

func newIndex(samples []domain.FloodSample) *index {
	if len(samples) == 0 {
		return nil
	}
	mp := make(orb.MultiPoint, len(samples))
	for i, s := range samples {
		mp[i] = s.Point()
	}
	tree := quadtree.New(mp.Bound())
	for i, p := range mp {
		// Every point lies inside the bound it was computed from.
		_ = tree.Add(indexedSample{pos: i, p: p})
	}
	return &index{tree: tree}
}

// within returns the samples at haversine distance <= radius in corpus order.
func (ix *index) within(samples []domain.FloodSample, radius float64, center domain.GeoPoint) []domain.FloodSample {
	if radius < 0 || math.IsNaN(radius) {
		return nil
	}
	c := center.Point()
	bound := geo.NewBoundAroundPoint(c, radius*1.01+1).Pad(1e-9)
	if bound.Min[0] > bound.Max[0] {
		// The bound wraps across the antimeridian, which the tree cannot query.
		return domain.PointsWithinRadius(samples, radius, center)
	}

	candidates := ix.tree.InBound(nil, bound)
	positions := make([]int, 0, len(candidates))
	for _, cand := range candidates {
		is := cand.(indexedSample)
		if geo.DistanceHaversine(is.p, c) <= radius {
			positions = append(positions, is.pos)
		}
	}
	if len(positions) == 0 {
		return nil
	}
	slices.Sort(positions)

	out := make([]domain.FloodSample, len(positions))
	for i, pos := range positions {
		out[i] = samples[pos]
	}
	return out
}
