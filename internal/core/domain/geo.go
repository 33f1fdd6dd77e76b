package domain

// Coordinate is a geographic position in (lng, lat) order, matching the
// mapping-library convention. It marshals as a two-element JSON array.
type Coordinate [2]float64

// Lng returns the longitude component.
func (c Coordinate) Lng() float64 { return c[0] }

// Lat returns the latitude component.
func (c Coordinate) Lat() float64 { return c[1] }

// CoordinateRecord is the flat storage shape for a coordinate. The remote
// document store rejects nested array structures, so polylines are stored as
// lists of these records and reassembled on read.
type CoordinateRecord struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// FlattenCoordinates converts a polyline into its flat storage shape.
// A nil input yields nil so an absent snapped path stays absent.
func FlattenCoordinates(coords []Coordinate) []CoordinateRecord {
	if coords == nil {
		return nil
	}
	records := make([]CoordinateRecord, len(coords))
	for i, c := range coords {
		records[i] = CoordinateRecord{Lng: c.Lng(), Lat: c.Lat()}
	}
	return records
}

// CollectCoordinates is the inverse of FlattenCoordinates.
func CollectCoordinates(records []CoordinateRecord) []Coordinate {
	if records == nil {
		return nil
	}
	coords := make([]Coordinate, len(records))
	for i, r := range records {
		coords[i] = Coordinate{r.Lng, r.Lat}
	}
	return coords
}
