// Package merge defines how a repeated report of the same user is folded
// into the existing blocklist record.
package merge

import (
	"fmt"
	"strings"

	"github.com/okian/sift/internal/domain/model"
)

// Policy names a merge strategy.
type Policy string

// Supported policies.
const (
	// Increment bumps block_count on every repeated report and keeps the latest reason.
	Increment Policy = "increment"
	// Upsert replaces the record; block_count never grows past 1.
	Upsert Policy = "upsert"
)

// Default is the policy used when none is configured.
const Default = Increment

// Policies lists every supported policy.
func Policies() []Policy {
	return []Policy{Increment, Upsert}
}

// Parse converts a configured name into a Policy.
func Parse(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case Increment, Upsert:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// String implements fmt.Stringer.
func (p Policy) String() string { return string(p) }

// Merge computes the record that results from applying r on top of existing.
// existing is nil when the user has never been reported.
func (p Policy) Merge(existing *model.BlockRecord, r model.Report) model.ReportOutcome {
	if existing == nil {
		return model.ReportOutcome{
			Record:  model.BlockRecord{UserID: r.UserID, Reason: r.Reason, BlockCount: 1},
			Created: true,
		}
	}

	next := model.BlockRecord{UserID: r.UserID, Reason: r.Reason, BlockCount: 1}
	if p == Increment {
		count := existing.BlockCount
		if count < 1 {
			// unset counts in hand-managed tables read as one report
			count = 1
		}
		next.BlockCount = count + 1
	}
	return model.ReportOutcome{Record: next}
}

// Message renders the confirmation returned to the reporter.
func (p Policy) Message(o model.ReportOutcome) string {
	if p != Increment {
		return fmt.Sprintf("User %s reported successfully", o.Record.UserID)
	}
	if o.Created {
		return fmt.Sprintf("User %s reported successfully (count: %d)", o.Record.UserID, o.Record.BlockCount)
	}
	return fmt.Sprintf("User %s reported again (count: %d)", o.Record.UserID, o.Record.BlockCount)
}
