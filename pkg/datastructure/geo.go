package datastructure

// BoundingBox is an axis-aligned lat/lon box.
type BoundingBox struct {
	minLat, minLon float64
	maxLat, maxLon float64
}

func NewBoundingBox(minLat, minLon, maxLat, maxLon float64) BoundingBox {
	return BoundingBox{
		minLat: minLat,
		minLon: minLon,
		maxLat: maxLat,
		maxLon: maxLon,
	}
}

// Min is the lower corner as (lon, lat), the axis order of the spatial index.
func (b BoundingBox) Min() [2]float64 {
	return [2]float64{b.minLon, b.minLat}
}

func (b BoundingBox) Max() [2]float64 {
	return [2]float64{b.maxLon, b.maxLat}
}

func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon
}
