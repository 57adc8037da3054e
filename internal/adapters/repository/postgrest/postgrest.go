// Package postgrest keeps the blocklist in a hosted Supabase table through
// its PostgREST interface.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/domain/merge"
	"github.com/okian/sift/internal/domain/model"
)

const (
	defaultTable       = "blocklist"
	defaultMaxAttempts = 5
	maxErrorBody       = 64 << 10
	restPath           = "/rest/v1/"
)

// row is the wire shape of a blocklist row; block_count may be null.
type row struct {
	UserID     string  `json:"user_id"`
	Reason     *string `json:"reason"`
	BlockCount *int    `json:"block_count"`
}

func (r row) record() model.BlockRecord {
	count := 1
	if r.BlockCount != nil && *r.BlockCount >= 1 {
		count = *r.BlockCount
	}
	return model.BlockRecord{UserID: r.UserID, Reason: r.Reason, BlockCount: count}
}

// Store is a repository.Store over the PostgREST HTTP API.
// PostgREST has no atomic increment, so Increment is a read followed by a
// write conditioned on the count that was read.
type Store struct {
	endpoint    string
	key         string
	table       string
	client      *http.Client
	timeout     time.Duration
	maxAttempts int
}

var _ repository.Store = (*Store)(nil)

// New returns a Store for the project at baseURL authenticated with key.
func New(baseURL, key string, opts ...Option) (*Store, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}

	s := &Store{
		key:         key,
		table:       defaultTable,
		client:      &http.Client{},
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoint = strings.TrimRight(u.String(), "/") + restPath + url.PathEscape(s.table)
	return s, nil
}

// ListUserIDs returns every user_id in the order PostgREST returns them.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var rows []row
	q := url.Values{"select": {"user_id"}}
	if _, err := s.do(ctx, http.MethodGet, q, nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("postgrest: list: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

// Get returns the record for userID.
func (s *Store) Get(ctx context.Context, userID string) (model.BlockRecord, error) {
	r, err := s.get(ctx, userID)
	if err != nil {
		return model.BlockRecord{}, err
	}
	return r.record(), nil
}

func (s *Store) get(ctx context.Context, userID string) (row, error) {
	var rows []row
	q := url.Values{
		"select":  {"user_id,reason,block_count"},
		"user_id": {"eq." + userID},
		"limit":   {"1"},
	}
	if _, err := s.do(ctx, http.MethodGet, q, nil, nil, &rows); err != nil {
		return row{}, fmt.Errorf("postgrest: get: %w", err)
	}
	if len(rows) == 0 {
		return row{}, repository.ErrNotFound
	}
	return rows[0], nil
}

// Increment creates the record or bumps its count. A write that loses a race
// to another reporter is retried from a fresh read, up to maxAttempts times.
func (s *Store) Increment(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	if r.UserID == "" {
		return model.ReportOutcome{}, repository.ErrEmptyUser
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		current, err := s.get(ctx, r.UserID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			out, ok, err := s.insert(ctx, r)
			if err != nil {
				return model.ReportOutcome{}, err
			}
			if ok {
				return out, nil
			}
		case err != nil:
			return model.ReportOutcome{}, err
		default:
			existing := current.record()
			next := merge.Increment.Merge(&existing, r)
			rec, ok, err := s.swap(ctx, current, next.Record)
			if err != nil {
				return model.ReportOutcome{}, err
			}
			if ok {
				return model.ReportOutcome{Record: rec}, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return model.ReportOutcome{}, err
		}
	}
	return model.ReportOutcome{}, fmt.Errorf("postgrest: increment %q: %w", r.UserID, repository.ErrConflict)
}

// insert adds a new row. ok is false when another reporter inserted first.
func (s *Store) insert(ctx context.Context, r model.Report) (model.ReportOutcome, bool, error) {
	one := 1
	body := row{UserID: r.UserID, Reason: r.Reason, BlockCount: &one}
	var rows []row
	status, err := s.do(ctx, http.MethodPost, nil, body, []string{"return=representation"}, &rows)
	if status == http.StatusConflict {
		return model.ReportOutcome{}, false, nil
	}
	if err != nil {
		return model.ReportOutcome{}, false, fmt.Errorf("postgrest: insert: %w", err)
	}
	rec := body.record()
	if len(rows) > 0 {
		rec = rows[0].record()
	}
	return model.ReportOutcome{Record: rec, Created: true}, true, nil
}

// swap writes next only if the stored count still equals the one read.
// ok is false when no row matched, meaning the count moved underneath.
func (s *Store) swap(ctx context.Context, current row, next model.BlockRecord) (model.BlockRecord, bool, error) {
	q := url.Values{"user_id": {"eq." + current.UserID}}
	if current.BlockCount == nil {
		q.Set("block_count", "is.null")
	} else {
		q.Set("block_count", "eq."+strconv.Itoa(*current.BlockCount))
	}

	count := next.BlockCount
	body := row{UserID: next.UserID, Reason: next.Reason, BlockCount: &count}
	var rows []row
	if _, err := s.do(ctx, http.MethodPatch, q, body, []string{"return=representation"}, &rows); err != nil {
		return model.BlockRecord{}, false, fmt.Errorf("postgrest: update: %w", err)
	}
	if len(rows) == 0 {
		return model.BlockRecord{}, false, nil
	}
	return rows[0].record(), true, nil
}

// Upsert inserts or replaces the record using PostgREST's merge-duplicates resolution.
func (s *Store) Upsert(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	if r.UserID == "" {
		return model.ReportOutcome{}, repository.ErrEmptyUser
	}

	_, err := s.get(ctx, r.UserID)
	created := errors.Is(err, repository.ErrNotFound)
	if err != nil && !created {
		return model.ReportOutcome{}, err
	}

	one := 1
	body := row{UserID: r.UserID, Reason: r.Reason, BlockCount: &one}
	var rows []row
	q := url.Values{"on_conflict": {"user_id"}}
	prefer := []string{"resolution=merge-duplicates", "return=representation"}
	if _, err := s.do(ctx, http.MethodPost, q, body, prefer, &rows); err != nil {
		return model.ReportOutcome{}, fmt.Errorf("postgrest: upsert: %w", err)
	}
	rec := body.record()
	if len(rows) > 0 {
		rec = rows[0].record()
	}
	return model.ReportOutcome{Record: rec, Created: created}, nil
}

// Count asks PostgREST for an exact count without transferring rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	req, cancel, err := s.newRequest(ctx, http.MethodHead, url.Values{"select": {"user_id"}}, nil, []string{"count=exact"})
	if err != nil {
		return 0, fmt.Errorf("postgrest: count: %w", err)
	}
	defer cancel()

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("postgrest: count: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("postgrest: count: %w", &APIError{Status: resp.StatusCode, Message: resp.Status})
	}

	n, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("postgrest: count: %w", err)
	}
	return n, nil
}

// parseContentRange reads the total from "0-9/42" or "*/0".
func parseContentRange(v string) (int, error) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("malformed Content-Range %q", v)
	}
	n, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return 0, fmt.Errorf("malformed Content-Range %q", v)
	}
	return n, nil
}

// Ping fetches at most one row.
func (s *Store) Ping(ctx context.Context) error {
	var rows []row
	q := url.Values{"select": {"user_id"}, "limit": {"1"}}
	if _, err := s.do(ctx, http.MethodGet, q, nil, nil, &rows); err != nil {
		return fmt.Errorf("postgrest: ping: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) newRequest(ctx context.Context, method string, q url.Values, body any, prefer []string) (*http.Request, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}

	target := s.endpoint
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(prefer, ","))
	}
	return req, cancel, nil
}

// do sends one request and decodes a JSON answer into out.
// The status code is returned even on failure so callers can branch on it.
func (s *Store) do(ctx context.Context, method string, q url.Values, body any, prefer []string, out any) (int, error) {
	req, cancel, err := s.newRequest(ctx, method, q, body, prefer)
	if err != nil {
		return 0, err
	}
	defer cancel()

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return resp.StatusCode, apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
