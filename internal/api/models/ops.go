package models

// Health is the response body for health and readiness checks.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// UpstreamStatus describes the health of one push service host.
type UpstreamStatus struct {
	Host          string       `json:"host"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
}

// SystemStatus is the response body for the system status endpoint.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Upstreams []UpstreamStatus `json:"upstreams"`
}

// FeatureFlag represents a feature flag in API responses.
type FeatureFlag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// FeatureFlagList represents a list of feature flags.
type FeatureFlagList struct {
	Items []FeatureFlag `json:"items"`
}

// FeatureFlagUpdateRequest is the body for updating feature flags.
type FeatureFlagUpdateRequest struct {
	Updates []FeatureFlagUpdate `json:"updates"`
	Reason  string              `json:"reason,omitempty"`
}

// FeatureFlagUpdate is a single flag update.
type FeatureFlagUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}
