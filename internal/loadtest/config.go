// Package loadtest drives concurrent reports against a running sift
// instance and checks the blocklist afterwards.
package loadtest

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL        string        // Base URL of the service
	APIKey         string        // x-api-key for POST /report
	Users          int           // Distinct users to report
	ReportsPerUser int           // Reports submitted for each user
	Workers        int           // Concurrent submitters
	Timeout        time.Duration // HTTP request timeout
	OutputFile     string        // Optional JSON dump of the submitted reports
	Verbose        bool          // Log progress instead of a one-line counter
}

// Report is one POST /report body.
type Report struct {
	UserID string  `json:"user_id"`
	Reason *string `json:"reason,omitempty"`
}

// Blocklist mirrors the GET /blocklist response.
type Blocklist struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Stats holds run statistics.
type Stats struct {
	ReportsGenerated  int
	ReportsSubmitted  int
	ReportsSuccessful int
	ReportsForbidden  int
	ReportsFailed     int
	BlocklistBefore   int
	BlocklistAfter    int
	MissingUsers      int
	MaxCountMismatch  int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
