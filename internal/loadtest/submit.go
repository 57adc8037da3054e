package loadtest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sift/pkg/logger"
)

var countRe = regexp.MustCompile(`\(count: (\d+)\)`)

type messageResponse struct {
	Message string `json:"message"`
}

// maxCounts tracks the highest count each user's confirmations reported.
type maxCounts struct {
	mu sync.Mutex
	m  map[string]int
}

func (c *maxCounts) observe(userID, message string) {
	m := countRe.FindStringSubmatch(message)
	if m == nil {
		return
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.m[userID] {
		c.m[userID] = n
	}
}

// submitReports posts reports concurrently through a worker pool.
func submitReports(ctx context.Context, cfg *Config, client *HTTPClient, reports []Report, stats *Stats) *maxCounts {
	log := logger.Get()
	log.Info(ctx, "submitting reports", logger.Int("reports", len(reports)), logger.Int("workers", cfg.Workers))

	var (
		submitted  atomic.Int64
		successful atomic.Int64
		forbidden  atomic.Int64
		failed     atomic.Int64
		lastReport atomic.Int64
	)
	counts := &maxCounts{m: make(map[string]int)}

	reportChan := make(chan Report, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range reportChan {
				var resp messageResponse
				status, err := client.postJSON(ctx, "/report", r, &resp)
				submitted.Add(1)
				switch {
				case err == nil && status == StatusOK:
					successful.Add(1)
					counts.observe(r.UserID, resp.Message)
				case status == StatusForbidden:
					forbidden.Add(1)
				default:
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "report failed", logger.String("userID", r.UserID), logger.Int("status", status), logger.Error(err))
					}
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					if cfg.Verbose {
						log.Info(ctx, "progress",
							logger.Int("submitted", int(submitted.Load())),
							logger.Int("total", len(reports)),
							logger.Int("failed", int(failed.Load())),
						)
					} else {
						fmt.Printf("\rsubmitted: %d/%d (failed: %d)", submitted.Load(), len(reports), failed.Load())
					}
				}
			}
		}()
	}

	go func() {
		defer close(reportChan)
		for _, r := range reports {
			select {
			case <-ctx.Done():
				return
			case reportChan <- r:
			}
		}
	}()

	wg.Wait()
	if !cfg.Verbose {
		fmt.Println()
	}

	stats.ReportsSubmitted = int(submitted.Load())
	stats.ReportsSuccessful = int(successful.Load())
	stats.ReportsForbidden = int(forbidden.Load())
	stats.ReportsFailed = int(failed.Load())
	return counts
}
