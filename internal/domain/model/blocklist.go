// Package model contains domain models passed between layers.
package model

// BlockRecord is one row of the blocklist. There is exactly one record per UserID.
type BlockRecord struct {
	UserID     string  // primary key
	Reason     *string // latest submitted reason, nil when none was given
	BlockCount int     // number of times the user was reported, always >= 1
}

// Report is a request to record (or re-record) a user in the blocklist.
type Report struct {
	UserID string
	Reason *string
}

// ReportOutcome describes what a report did to the blocklist.
type ReportOutcome struct {
	Record  BlockRecord
	Created bool // true when the report created the record
}

// ReasonOrEmpty returns the reason text or "" when unset.
func (r BlockRecord) ReasonOrEmpty() string {
	if r.Reason == nil {
		return ""
	}
	return *r.Reason
}
