package geomap

import "math"

// Bounds is a lon/lat box. The zero value is empty.
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	set                            bool
}

// WorldBounds covers the inhabited latitudes.
var WorldBounds = Bounds{MinLon: -180, MinLat: -60, MaxLon: 180, MaxLat: 85, set: true}

func (b Bounds) Empty() bool { return !b.set }

// Extend grows b to include (lon, lat).
func (b Bounds) Extend(lon, lat float64) Bounds {
	if !b.set {
		return Bounds{MinLon: lon, MinLat: lat, MaxLon: lon, MaxLat: lat, set: true}
	}
	b.MinLon, b.MaxLon = math.Min(b.MinLon, lon), math.Max(b.MaxLon, lon)
	b.MinLat, b.MaxLat = math.Min(b.MinLat, lat), math.Max(b.MaxLat, lat)
	return b
}

// Union merges two boxes.
func (b Bounds) Union(o Bounds) Bounds {
	if !o.set {
		return b
	}
	b = b.Extend(o.MinLon, o.MinLat)
	return b.Extend(o.MaxLon, o.MaxLat)
}

// Contains reports whether (lon, lat) lies inside b.
func (b Bounds) Contains(lon, lat float64) bool {
	return b.set && lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// Projection is an equirectangular projection fitted to a box.
type Projection struct {
	k, ox, oy      float64
	minLon, maxLat float64
}

// Fit scales b uniformly into a w x h viewport with pad pixels on every side
// and centres it. A degenerate box is widened by half a degree.
func Fit(b Bounds, w, h, pad float64) Projection {
	if !b.set {
		b = WorldBounds
	}
	if b.MaxLon-b.MinLon < 1e-9 {
		b.MinLon, b.MaxLon = b.MinLon-0.5, b.MaxLon+0.5
	}
	if b.MaxLat-b.MinLat < 1e-9 {
		b.MinLat, b.MaxLat = b.MinLat-0.5, b.MaxLat+0.5
	}
	aw, ah := math.Max(1, w-2*pad), math.Max(1, h-2*pad)
	dx, dy := b.MaxLon-b.MinLon, b.MaxLat-b.MinLat
	k := math.Min(aw/dx, ah/dy)
	return Projection{
		k:      k,
		ox:     pad + (aw-dx*k)/2,
		oy:     pad + (ah-dy*k)/2,
		minLon: b.MinLon,
		maxLat: b.MaxLat,
	}
}

// Project maps lon/lat to viewport x/y.
func (p Projection) Project(lon, lat float64) (float64, float64) {
	return p.ox + (lon-p.minLon)*p.k, p.oy + (p.maxLat-lat)*p.k
}

// Invert maps viewport x/y back to lon/lat.
func (p Projection) Invert(x, y float64) (float64, float64) {
	return p.minLon + (x-p.ox)/p.k, p.maxLat - (y-p.oy)/p.k
}
