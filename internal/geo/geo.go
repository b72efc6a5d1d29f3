// Package geo implements the distance approximations and nearest-neighbour
// search used to derive location features.
//
// Distances are in kilometres. Coordinates are decimal degrees with
// longitude first, matching the column order of the input data.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKM is the equatorial radius used by Dist.
const EarthRadiusKM = 6378.0

// Point is a longitude/latitude pair in degrees.
type Point struct {
	Long float64
	Lat  float64
}

// KMPerDegree returns the arc length of one degree on a sphere of the given radius.
func KMPerDegree(radiusKM float64) float64 {
	return 2 * math.Pi * radiusKM / 360
}

// Planar scales a degree offset into kilometres, correcting the longitude
// component with the cosine of correctionLat.
func Planar(deltaLong, deltaLat, correctionLat, radiusKM float64) float64 {
	corrected := deltaLong * math.Cos(radians(correctionLat))
	return math.Sqrt(corrected*corrected+deltaLat*deltaLat) * KMPerDegree(radiusKM)
}

// Dist is the equirectangular distance from (long, lat) to (refLong, refLat),
// with the longitude correction taken at the reference latitude.
func Dist(long, lat, refLong, refLat float64) float64 {
	return Planar(long-refLong, lat-refLat, refLat, EarthRadiusKM)
}

// Projection measures the distance between a point and a reference point.
// Implementations must also provide a lower bound on the distance from a
// point to anything inside a box, which lets spatial indexes prune.
type Projection interface {
	Name() string
	Distance(p, ref Point) float64
	LowerBound(p Point, b Box) float64
}

// Equirectangular is the flat-earth approximation of Dist on a sphere of
// RadiusKM. The longitude correction uses the reference point's latitude.
type Equirectangular struct {
	RadiusKM float64
}

// Name implements Projection.
func (Equirectangular) Name() string { return "equirectangular" }

// Distance implements Projection.
func (e Equirectangular) Distance(p, ref Point) float64 {
	return Planar(p.Long-ref.Long, p.Lat-ref.Lat, ref.Lat, e.radius())
}

// LowerBound implements Projection. Each squared term is minimised
// independently over the box, so the result never exceeds the distance to
// any reference inside it.
func (e Equirectangular) LowerBound(p Point, b Box) float64 {
	dLong := gap(p.Long, b.Min.Long, b.Max.Long)
	dLat := gap(p.Lat, b.Min.Lat, b.Max.Lat)
	c2 := minCos2(b.Min.Lat, b.Max.Lat)
	return math.Sqrt(dLong*dLong*c2+dLat*dLat) * KMPerDegree(e.radius())
}

func (e Equirectangular) radius() float64 {
	if e.RadiusKM == 0 {
		return EarthRadiusKM
	}
	return e.RadiusKM
}

// Haversine is the great-circle distance on a sphere of RadiusKM.
type Haversine struct {
	RadiusKM float64
}

// Name implements Projection.
func (Haversine) Name() string { return "haversine" }

// Distance implements Projection.
func (h Haversine) Distance(p, ref Point) float64 {
	lat1, lat2 := radians(p.Lat), radians(ref.Lat)
	dLat := lat2 - lat1
	dLong := radians(ref.Long - p.Long)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLong/2)*math.Sin(dLong/2)
	if a > 1 {
		a = 1
	}
	return 2 * h.radius() * math.Asin(math.Sqrt(a))
}

// LowerBound implements Projection. The central angle between two points is
// never smaller than their latitude difference.
func (h Haversine) LowerBound(p Point, b Box) float64 {
	return radians(gap(p.Lat, b.Min.Lat, b.Max.Lat)) * h.radius()
}

func (h Haversine) radius() float64 {
	if h.RadiusKM == 0 {
		return EarthRadiusKM
	}
	return h.RadiusKM
}

// ProjectionByName resolves a configured projection name.
func ProjectionByName(name string, radiusKM float64) (Projection, error) {
	switch name {
	case "", "equirectangular":
		return Equirectangular{RadiusKM: radiusKM}, nil
	case "haversine":
		return Haversine{RadiusKM: radiusKM}, nil
	default:
		return nil, fmt.Errorf("unknown projection %q", name)
	}
}

// Box is an axis-aligned bounding box in degrees.
type Box struct {
	Min Point
	Max Point
}

// Bounds returns the smallest box containing every point.
func Bounds(points []Point) Box {
	if len(points) == 0 {
		return Box{}
	}
	b := Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min.Long = math.Min(b.Min.Long, p.Long)
		b.Min.Lat = math.Min(b.Min.Lat, p.Lat)
		b.Max.Long = math.Max(b.Max.Long, p.Long)
		b.Max.Lat = math.Max(b.Max.Lat, p.Lat)
	}
	return b
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// gap is the distance from v to the interval [lo, hi], zero inside it.
func gap(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo - v
	case v > hi:
		return v - hi
	default:
		return 0
	}
}

// minCos2 is the minimum of cos²(lat) for lat in [lo, hi] degrees.
// cos² has period 180 and reaches zero at 90 + 180k.
func minCos2(lo, hi float64) float64 {
	if hi-lo >= 180 {
		return 0
	}
	k := math.Ceil((lo - 90) / 180)
	if 90+180*k <= hi {
		return 0
	}
	a := math.Cos(radians(lo))
	b := math.Cos(radians(hi))
	return math.Min(a*a, b*b)
}
