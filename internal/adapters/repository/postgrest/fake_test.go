package postgrest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// fakeREST emulates the subset of PostgREST the store speaks.
type fakeREST struct {
	mu    sync.Mutex
	key   string
	rows  []row
	fail  int
	calls map[string]int
	// beforePatch runs under the lock ahead of every PATCH, letting tests
	// simulate a concurrent writer.
	beforePatch func(f *fakeREST)
}

func newFakeREST(key string) *fakeREST {
	return &fakeREST{key: key, calls: map[string]int{}}
}

func (f *fakeREST) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(f.serve))
}

// with mutates the fake under its lock.
func (f *fakeREST) with(fn func(f *fakeREST)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeREST) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeREST) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeREST) index(userID string) int {
	for i, r := range f.rows {
		if r.UserID == userID {
			return i
		}
	}
	return -1
}

func (f *fakeREST) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeREST) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.Method]++

	if r.Header.Get("apikey") != f.key || r.Header.Get("Authorization") != "Bearer "+f.key {
		f.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}
	if !strings.HasPrefix(r.URL.Path, restPath) {
		f.writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return
	}
	if f.fail != 0 {
		f.writeJSON(w, f.fail, map[string]string{"code": "XX000", "message": "relation is unavailable"})
		return
	}

	q := r.URL.Query()
	switch r.Method {
	case http.MethodHead:
		n := len(f.rows)
		if n == 0 {
			w.Header().Set("Content-Range", "*/0")
		} else {
			w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", n-1, n))
		}
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		out := []row{}
		for _, rw := range f.rows {
			if matches(rw, q) {
				out = append(out, rw)
			}
		}
		if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit < len(out) {
			out = out[:limit]
		}
		f.writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var in row
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			f.writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		merge := q.Get("on_conflict") == "user_id" && strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates")
		if i := f.index(in.UserID); i >= 0 {
			if !merge {
				f.writeJSON(w, http.StatusConflict, map[string]string{
					"code":    "23505",
					"message": "duplicate key value violates unique constraint",
				})
				return
			}
			f.rows[i] = in
		} else {
			f.rows = append(f.rows, in)
		}
		f.writeJSON(w, http.StatusCreated, []row{in})

	case http.MethodPatch:
		if f.beforePatch != nil {
			f.beforePatch(f)
		}
		var in row
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			f.writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		out := []row{}
		for i, rw := range f.rows {
			if matches(rw, q) {
				rw.Reason = in.Reason
				rw.BlockCount = in.BlockCount
				f.rows[i] = rw
				out = append(out, rw)
			}
		}
		f.writeJSON(w, http.StatusOK, out)

	default:
		f.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
	}
}

// matches applies the eq./is.null filters the store sends.
func matches(rw row, q map[string][]string) bool {
	if v, ok := q["user_id"]; ok && "eq."+rw.UserID != v[0] {
		return false
	}
	if v, ok := q["block_count"]; ok {
		switch {
		case v[0] == "is.null":
			return rw.BlockCount == nil
		case rw.BlockCount == nil:
			return false
		default:
			return v[0] == "eq."+strconv.Itoa(*rw.BlockCount)
		}
	}
	return true
}
