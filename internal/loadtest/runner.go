package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/sift/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Verification errors.
var (
	ErrUnhealthy      = errors.New("service is not healthy")
	ErrMissingUsers   = errors.New("reported users missing from blocklist")
	ErrCountMismatch  = errors.New("blocklist count does not match distinct reported users")
	ErrReportsFailed  = errors.New("some reports failed")
	ErrUnexpectedCode = errors.New("unexpected status code")
)

// Run executes the complete load run and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting sift load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("reportsPerUser", cfg.ReportsPerUser),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	client := newHTTPClient(cfg)

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, err
	}

	before, err := fetchBlocklist(ctx, client)
	if err != nil {
		return stats, fmt.Errorf("baseline blocklist: %w", err)
	}
	stats.BlocklistBefore = before.Count

	reports, users, err := generateReports(ctx, cfg, stats)
	if err != nil {
		return stats, fmt.Errorf("report generation failed: %w", err)
	}

	counts := submitReports(ctx, cfg, client, reports, stats)

	after, err := fetchBlocklist(ctx, client)
	if err != nil {
		return stats, fmt.Errorf("final blocklist: %w", err)
	}
	stats.BlocklistAfter = after.Count

	if err := saveReportsToFile(ctx, cfg, reports); err != nil {
		log.Warn(ctx, "failed to save reports to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	verr := verifyResults(cfg, users, after, counts, stats)
	displayFinalStats(stats)
	if verr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verr)
	}
	log.Info(ctx, "load run completed successfully")
	return stats, nil
}

func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	var body map[string]string
	status, err := client.getJSON(ctx, "/health", &body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != StatusOK || body["status"] != "healthy" {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

func fetchBlocklist(ctx context.Context, client *HTTPClient) (Blocklist, error) {
	var bl Blocklist
	status, err := client.getJSON(ctx, "/blocklist", &bl)
	if err != nil {
		return Blocklist{}, err
	}
	if status != StatusOK {
		return Blocklist{}, fmt.Errorf("%w: %d", ErrUnexpectedCode, status)
	}
	return bl, nil
}

// verifyResults checks that every reported user is listed, that the list grew
// by exactly the number of fresh users, and, when confirmations carry counts,
// that each user reached ReportsPerUser.
func verifyResults(cfg *Config, users []string, after Blocklist, counts *maxCounts, stats *Stats) error {
	var errs []error
	if stats.ReportsFailed > 0 || stats.ReportsForbidden > 0 {
		errs = append(errs, fmt.Errorf("%w: %d failed, %d forbidden", ErrReportsFailed, stats.ReportsFailed, stats.ReportsForbidden))
	}

	listed := make(map[string]struct{}, len(after.Users))
	for _, u := range after.Users {
		listed[u] = struct{}{}
	}
	for _, u := range users {
		if _, ok := listed[u]; !ok {
			stats.MissingUsers++
		}
	}
	if stats.MissingUsers > 0 {
		errs = append(errs, fmt.Errorf("%w: %d of %d", ErrMissingUsers, stats.MissingUsers, len(users)))
	}

	if got := stats.BlocklistAfter - stats.BlocklistBefore; got != len(users) {
		errs = append(errs, fmt.Errorf("%w: grew by %d, want %d", ErrCountMismatch, got, len(users)))
	}

	counts.mu.Lock()
	if len(counts.m) > 0 {
		for _, u := range users {
			if counts.m[u] != cfg.ReportsPerUser {
				stats.MaxCountMismatch++
			}
		}
	}
	counts.mu.Unlock()
	if stats.MaxCountMismatch > 0 {
		errs = append(errs, fmt.Errorf("%w: %d users ended below %d reports", ErrCountMismatch, stats.MaxCountMismatch, cfg.ReportsPerUser))
	}

	return errors.Join(errs...)
}

// saveReportsToFile writes the submitted reports as a JSON array.
func saveReportsToFile(ctx context.Context, cfg *Config, reports []Report) error {
	if cfg.OutputFile == "" {
		return nil
	}
	if dir := filepath.Dir(cfg.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reports: %w", err)
	}
	if err := os.WriteFile(cfg.OutputFile, data, filePermission); err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}
	logger.Get().Info(ctx, "reports saved to file", logger.String("filename", cfg.OutputFile))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var successRate, reportsPerSecond float64
	if stats.ReportsSubmitted > 0 {
		successRate = float64(stats.ReportsSuccessful) / float64(stats.ReportsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		reportsPerSecond = float64(stats.ReportsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("reportsGenerated", stats.ReportsGenerated),
		logger.Int("reportsSubmitted", stats.ReportsSubmitted),
		logger.Int("reportsSuccessful", stats.ReportsSuccessful),
		logger.Int("reportsForbidden", stats.ReportsForbidden),
		logger.Int("reportsFailed", stats.ReportsFailed),
		logger.Int("blocklistBefore", stats.BlocklistBefore),
		logger.Int("blocklistAfter", stats.BlocklistAfter),
		logger.Int("missingUsers", stats.MissingUsers),
		logger.Duration("duration", stats.Duration),
		logger.Any("successRate", successRate),
		logger.Any("reportsPerSecond", reportsPerSecond),
	)
}
