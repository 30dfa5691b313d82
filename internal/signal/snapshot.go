package signal

import "time"

// GasSnapshot reports current network gas prices in gwei. A non-empty Err
// marks the snapshot as unavailable; consumers fall back to their documented
// availability default.
type GasSnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	StandardGwei float64   `json:"standard_gwei"`
	BaseFeeGwei  float64   `json:"base_fee_gwei"`
	Err          string    `json:"error,omitempty"`
}

// Available reports whether the snapshot carries a usable reading.
func (s *GasSnapshot) Available() bool {
	return s != nil && s.Err == ""
}

// ClockSnapshot carries wall-clock attributes in UTC.
type ClockSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"`
	Weekday   int       `json:"weekday"`
	IsWeekend bool      `json:"is_weekend"`
}

// TelemetryAlert is an active security alert as reported by the external
// monitoring feed.
type TelemetryAlert struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	Principal    string    `json:"principal,omitempty"`
	TriggerCount int       `json:"trigger_count"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
}

// GlobalStats mirrors the indexer's aggregate counters.
type GlobalStats struct {
	TotalExecutions int64 `json:"total_executions"`
	TotalEnabled    int64 `json:"total_enabled"`
	TotalDisabled   int64 `json:"total_disabled"`
	LastUpdated     int64 `json:"last_updated"`
}

// TelemetrySnapshot aggregates redemption telemetry and active security
// alerts from the indexing pipeline.
type TelemetrySnapshot struct {
	Timestamp        time.Time        `json:"timestamp"`
	Alerts           []TelemetryAlert `json:"alerts,omitempty"`
	RecentExecutions int              `json:"recent_executions"`
	Stats            *GlobalStats     `json:"stats,omitempty"`
	Err              string           `json:"error,omitempty"`
}

// Available reports whether the monitoring feed answered.
func (s *TelemetrySnapshot) Available() bool {
	return s != nil && s.Err == ""
}

// Set bundles the snapshots gathered for one evaluation. Individual fields
// may be nil when the corresponding provider is not configured.
type Set struct {
	Gas       *GasSnapshot       `json:"gas,omitempty"`
	Clock     *ClockSnapshot     `json:"clock,omitempty"`
	Telemetry *TelemetrySnapshot `json:"telemetry,omitempty"`
}
