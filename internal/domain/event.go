package domain

import "time"

// Coordinate reference systems carried by the data model. Coordinates are
// declared as one static field pair per CRS rather than generated at runtime.
const (
	// EPSGGeographic is ETRS89 geographic (lon/lat), the primary CRS of
	// ingested lightning records.
	EPSGGeographic = 4258
	// EPSGWGS84 is WGS-84 geographic, kept for interoperability with
	// downstream mapping tools.
	EPSGWGS84 = 4326
	// EPSGProjected is ETRS89 / UTM zone 31N, metric coordinates used for
	// all planar distance computations.
	EPSGProjected = 25831
)

// Event is a single geolocated lightning strike. Events are created at
// ingestion and never mutated; storms reference them by identity.
type Event struct {
	ID   int64
	Time time.Time // UTC

	// ETRS89 geographic coordinates (lon, lat).
	X4258 float64
	Y4258 float64

	// ETRS89 / UTM 31N projected coordinates in meters.
	X25831 float64
	Y25831 float64

	Provider string

	// Payload carries provider-specific measurement fields, selected at
	// construction. Nil for providers without an extension.
	Payload ProviderPayload
}

// ProviderPayload is the provider-specific extension of an Event.
type ProviderPayload interface {
	// ProviderName identifies the data provider that produced the payload.
	ProviderName() string
}

// MeteocatProvider is the provider name for the Catalan weather service
// lightning detection network.
const MeteocatProvider = "Meteocat"

// MeteocatPayload holds the XDDE network measurement fields attached to
// Meteocat lightning records.
type MeteocatPayload struct {
	MeteocatID       int64   `json:"meteocat_id"`
	PeakCurrent      float64 `json:"peak_current"`
	ChiSquared       float64 `json:"chi_squared"`
	EllipseMajorAxis float64 `json:"ellipse_major_axis"`
	EllipseMinorAxis float64 `json:"ellipse_minor_axis"`
	EllipseAngle     float64 `json:"ellipse_angle"`
	NumberOfSensors  int     `json:"number_of_sensors"`
	HitGround        bool    `json:"hit_ground"`
	Multiplicity     *int    `json:"multiplicity,omitempty"`
	MunicipalityCode string  `json:"municipality_code,omitempty"`
}

func (MeteocatPayload) ProviderName() string { return MeteocatProvider }
