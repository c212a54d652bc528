package domain

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// ProvinceFeature is one administrative region from the static polygon dataset.
type ProvinceFeature struct {
	Name   string
	Center *GeoPoint
	Rings  [][]GeoPoint
}

// ProvinceStatus is a province annotated with a user's unlock state.
type ProvinceStatus struct {
	Name     string
	Center   *GeoPoint
	Unlocked bool
}
