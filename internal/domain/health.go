package domain

import "time"

// Readiness statuses, from best to worst.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

var healthSeverity = map[string]int{
	HealthStatusOK:       0,
	HealthStatusDegraded: 1,
	HealthStatusError:    2,
}

// WorseHealthStatus returns the more severe of a and b. Empty or unknown values rank as ok.
func WorseHealthStatus(a, b string) string {
	if healthSeverity[b] > healthSeverity[a] {
		return b
	}
	if a == "" {
		return HealthStatusOK
	}
	return a
}

// SystemHealthCheck is one readiness probe. Infrastructure pings and the pipeline checks
// (catalog, province dataset) share this shape.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// CatalogSummary describes the food catalog scans resolve against.
type CatalogSummary struct {
	Foods   int
	Regions int
}

// SystemHealthReport is what /readyz renders. Catalog is nil and GeoState empty when the service
// was built without those components.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Catalog     *CatalogSummary
	GeoState    string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
