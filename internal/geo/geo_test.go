package geo

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDist(t *testing.T) {
	tests := []struct {
		name                       string
		long, lat, refLong, refLat float64
		want                       float64
	}{
		{"far reference", -122.238, 47.623, 200.0, 502.2, 57999.37},
		{"far reference second point", -122.245, 47.631, 200.0, 502.2, 57998.89},
		{"seattle pair", -122.3, 47.6, -122.2, 47.5, 13.434005351050175},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dist(tt.long, tt.lat, tt.refLong, tt.refLat)
			assert.InEpsilon(t, tt.want, got, 0.001)
		})
	}
}

func TestDist_SamePointIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Dist(-122.24194, 47.62774, -122.24194, 47.62774))
}

func TestKMPerDegree(t *testing.T) {
	assert.InDelta(t, 111.31709969219834, KMPerDegree(EarthRadiusKM), 1e-9)
}

func TestPlanar_MatchesDist(t *testing.T) {
	got := Planar(-122.3-(-122.2), 47.6-47.5, 47.5, EarthRadiusKM)
	assert.Equal(t, Dist(-122.3, 47.6, -122.2, 47.5), got)
}

func TestHaversine(t *testing.T) {
	h := Haversine{}

	assert.InDelta(t, 111.31709969219834, h.Distance(Point{0, 0}, Point{0, 1}), 1e-9)
	assert.InDelta(t, 13.429992919766638, h.Distance(Point{-122.3, 47.6}, Point{-122.2, 47.5}), 1e-9)
	assert.Equal(t, 0.0, h.Distance(Point{-122.3, 47.6}, Point{-122.3, 47.6}))
}

func TestProjectionByName(t *testing.T) {
	p, err := ProjectionByName("", 0)
	require.NoError(t, err)
	assert.Equal(t, "equirectangular", p.Name())

	p, err = ProjectionByName("haversine", 6371)
	require.NoError(t, err)
	assert.Equal(t, "haversine", p.Name())

	_, err = ProjectionByName("mercator", 0)
	require.Error(t, err)
}

func TestMinCos2(t *testing.T) {
	tests := []struct {
		name   string
		lo, hi float64
		want   float64
	}{
		{"seattle band", 47.1, 47.8, math.Pow(math.Cos(radians(47.8)), 2)},
		{"contains pole", 80, 95, 0},
		{"contains negative pole", -100, -80, 0},
		{"across equator", -10, 20, math.Pow(math.Cos(radians(20)), 2)},
		{"wraps past a full turn", 440, 460, 0},
		{"past a full turn without a zero", 490, 510, math.Pow(math.Cos(radians(490)), 2)},
		{"wide", 0, 200, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, minCos2(tt.lo, tt.hi), 1e-12)
		})
	}
}

func TestBounds(t *testing.T) {
	b := Bounds([]Point{{-122.2, 47.5}, {-122.4, 47.7}, {-122.3, 47.4}})
	assert.Equal(t, Box{Min: Point{-122.4, 47.4}, Max: Point{-122.2, 47.7}}, b)
	assert.Equal(t, Box{}, Bounds(nil))
}

func TestEquirectangular_LowerBoundNeverExceedsDistance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	proj := Equirectangular{}
	properties.Property("box bound is below the distance to every corner", prop.ForAll(
		func(long, lat, minLong, minLat, w, h float64) bool {
			b := Box{Min: Point{minLong, minLat}, Max: Point{minLong + w, minLat + h}}
			bound := proj.LowerBound(Point{long, lat}, b)
			for _, ref := range []Point{b.Min, b.Max, {b.Min.Long, b.Max.Lat}, {b.Max.Long, b.Min.Lat}} {
				if bound > proj.Distance(Point{long, lat}, ref)*(1+1e-12) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-180, 180),
		gen.Float64Range(-89, 89),
		gen.Float64Range(-180, 180),
		gen.Float64Range(-89, 89),
		gen.Float64Range(0, 10),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}

func TestNewIndex_Errors(t *testing.T) {
	_, err := NewIndex(IndexKDTree, nil, Equirectangular{})
	require.ErrorIs(t, err, ErrNoWaterfront)

	_, err = NewIndex(IndexBrute, []Point{}, Equirectangular{})
	require.ErrorIs(t, err, ErrNoWaterfront)

	_, err = NewIndex(IndexBrute, []Point{{math.NaN(), 47}}, Equirectangular{})
	require.ErrorIs(t, err, ErrInvalidPoint)

	_, err = NewIndex("grid", []Point{{0, 0}}, Equirectangular{})
	require.Error(t, err)
}

func TestIndex_Nearest(t *testing.T) {
	refs := []Point{
		{-122.2, 47.5},
		{-122.4, 47.7},
		{-122.3, 47.4},
	}

	for _, kind := range []string{IndexBrute, IndexKDTree} {
		t.Run(kind, func(t *testing.T) {
			idx, err := NewIndex(kind, refs, Equirectangular{})
			require.NoError(t, err)
			assert.Equal(t, 3, idx.Len())

			d, err := idx.Nearest(Point{-122.4, 47.7})
			require.NoError(t, err)
			assert.Equal(t, 0.0, d, "a reference point is at distance zero from itself")

			d, err = idx.Nearest(Point{-122.3, 47.6})
			require.NoError(t, err)
			assert.InDelta(t, Dist(-122.3, 47.6, -122.2, 47.5), d, 1e-9)

			_, err = idx.Nearest(Point{math.NaN(), 47.6})
			require.ErrorIs(t, err, ErrInvalidPoint)
		})
	}
}

func randomPoints(r *rand.Rand, n int, span float64) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{
			Long: -122.5 + r.Float64()*span,
			Lat:  47.2 + r.Float64()*span,
		}
	}
	return pts
}

func TestKDTree_MatchesBruteForce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	for _, proj := range []Projection{Equirectangular{}, Haversine{}} {
		properties.Property(proj.Name()+" kd-tree agrees with brute force", prop.ForAll(
			func(seed uint64, nRefs, nQueries int, span float64) bool {
				r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
				refs := randomPoints(r, nRefs, span)
				queries := append(randomPoints(r, nQueries, span*1.5), refs[0])

				brute, err := NewBruteForce(refs, proj)
				if err != nil {
					return false
				}
				tree, err := NewKDTree(refs, proj)
				if err != nil {
					return false
				}
				for _, q := range queries {
					want, _ := brute.Nearest(q)
					got, _ := tree.Nearest(q)
					if math.Abs(want-got) > 1e-9*math.Max(1, want) {
						return false
					}
				}
				return true
			},
			gen.UInt64(),
			gen.IntRange(1, 300),
			gen.IntRange(1, 50),
			gen.Float64Range(0.01, 20),
		))
	}

	properties.TestingRun(t)
}

func BenchmarkNearest(b *testing.B) {
	r := rand.New(rand.NewPCG(1, 2))
	refs := randomPoints(r, 2000, 1)
	queries := randomPoints(r, 1000, 1)

	for _, kind := range []string{IndexBrute, IndexKDTree} {
		idx, err := NewIndex(kind, refs, Equirectangular{})
		require.NoError(b, err)
		b.Run(kind, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = idx.Nearest(queries[i%len(queries)])
			}
		})
	}
}
