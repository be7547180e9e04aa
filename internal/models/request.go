package models

import "time"

// Request is a single recorded API call.
type Request struct {
	ID                int64     `json:"id"`
	UserID            *int64    `json:"user_id,omitempty"`
	Method            string    `json:"method"`
	Endpoint          string    `json:"endpoint"`
	StatusCode        int       `json:"status_code"`
	ResponseTimeMs    int       `json:"response_time_ms"`
	RequestSizeBytes  int       `json:"request_size_bytes"`
	ResponseSizeBytes int       `json:"response_size_bytes"`
	CreatedAt         time.Time `json:"created_at"`
}

// RequestStats aggregates recorded calls over a period.
type RequestStats struct {
	Total             int     `json:"total"`
	Errors            int     `json:"errors"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

// Analytics is the admin dashboard summary.
type Analytics struct {
	Users struct {
		Total     int `json:"total"`
		Active    int `json:"active"`
		Verified  int `json:"verified"`
		Admins    int `json:"admins"`
		NewLast7d int `json:"newLast7Days"`
	} `json:"users"`
	UsersByPlan             map[string]int `json:"usersByPlan"`
	EstimatedMonthlyRevenue int            `json:"estimatedMonthlyRevenue"`
	Credits                 struct {
		Purchased int `json:"purchased"`
		Used      int `json:"used"`
		Balance   int `json:"balance"`
	} `json:"credits"`
	Generations struct {
		Images int `json:"images"`
		Videos int `json:"videos"`
		Scenes int `json:"scenes"`
	} `json:"generations"`
	Jobs     *JobStats    `json:"jobs"`
	Requests RequestStats `json:"requests24h"`
}
