package models

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	GateStats GateStats `json:"gate_stats"`
	Version   string    `json:"version"`
}

// GateStats reports the state of the Session Gate.
type GateStats struct {
	Capacity int `json:"capacity"`
	Holding  int `json:"holding"`
	Waiting  int `json:"waiting"`

	// Retired counts browser sessions replaced after failing health checks.
	Retired int64 `json:"retired"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}
