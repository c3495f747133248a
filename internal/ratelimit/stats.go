package ratelimit

import "time"

// Stats is a point-in-time view of a Gate.
type Stats struct {
	RequestsInWindow   int           `json:"requests_in_window"`
	MaxRate            int           `json:"max_rate"`
	OriginalMaxRate    int           `json:"original_max_rate"`
	Period             time.Duration `json:"period_ns"`
	Waiting            int           `json:"waiting"`
	TotalGranted       uint64        `json:"total_granted"`
	UtilizationPercent float64       `json:"utilization_percent"`
	CacheSize          int           `json:"cache_size"`
}
