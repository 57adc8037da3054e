package loadtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/sift/pkg/logger"
)

var reasons = []string{"spam", "scam", "harassment", "impersonation", "bot"}

func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// generateReports builds ReportsPerUser reports for each of Users fresh ids
// and shuffles them so repeats of one user interleave with other users.
func generateReports(ctx context.Context, cfg *Config, stats *Stats) ([]Report, []string, error) {
	if cfg.Users <= 0 || cfg.ReportsPerUser <= 0 {
		return nil, nil, fmt.Errorf("users and reports per user must be positive")
	}
	logger.Get().Info(ctx, "generating reports",
		logger.Int("users", cfg.Users),
		logger.Int("reportsPerUser", cfg.ReportsPerUser),
	)

	users := make([]string, cfg.Users)
	for i := range users {
		users[i] = "load-" + uuid.NewString()
	}

	reports := make([]Report, 0, cfg.Users*cfg.ReportsPerUser)
	for _, u := range users {
		for j := 0; j < cfg.ReportsPerUser; j++ {
			r := Report{UserID: u}
			// roughly one report in five carries no reason
			if i := randomIndex(len(reasons) + 1); i < len(reasons) {
				reason := reasons[i]
				r.Reason = &reason
			}
			reports = append(reports, r)
		}
	}

	for i := len(reports) - 1; i > 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		j := randomIndex(i + 1)
		reports[i], reports[j] = reports[j], reports[i]
	}

	stats.ReportsGenerated = len(reports)
	return reports, users, nil
}
