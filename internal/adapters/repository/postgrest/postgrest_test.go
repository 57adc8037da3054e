package postgrest

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/adapters/repository/storetest"
	"github.com/okian/sift/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const testKey = "service-key"

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeREST) {
	t.Helper()
	fake := newFakeREST(testKey)
	srv := fake.server()
	t.Cleanup(srv.Close)

	s, err := New(srv.URL, testKey, opts...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, fake
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, "postgrest", func(t *testing.T) repository.Store {
		s, _ := newTestStore(t)
		return s
	}, storetest.Options{})
}

func TestNew(t *testing.T) {
	Convey("Given project URLs", t, func() {
		Convey("When the URL has no scheme", func() {
			_, err := New("example.supabase.co", testKey)

			Convey("Then New should fail with ErrInvalidURL", func() {
				So(errors.Is(err, ErrInvalidURL), ShouldBeTrue)
			})
		})

		Convey("When the URL has a trailing slash and a custom table", func() {
			s, err := New("https://example.supabase.co/", testKey, WithTable("reports"), WithTimeout(time.Second))

			Convey("Then the endpoint should point at the table", func() {
				So(err, ShouldBeNil)
				So(s.endpoint, ShouldEqual, "https://example.supabase.co/rest/v1/reports")
				So(s.timeout, ShouldEqual, time.Second)
			})
		})
	})
}

func TestStore_Increment_Races(t *testing.T) {
	ctx := context.Background()

	Convey("Given a stored record that another writer bumps once before our update", t, func() {
		s, fake := newTestStore(t)
		_, err := s.Increment(ctx, model.Report{UserID: "u1"})
		So(err, ShouldBeNil)

		bumped := false
		fake.with(func(f *fakeREST) {
			f.beforePatch = func(f *fakeREST) {
				if bumped {
					return
				}
				bumped = true
				n := *f.rows[0].BlockCount + 1
				f.rows[0].BlockCount = &n
			}
		})

		Convey("When the user is reported", func() {
			out, err := s.Increment(ctx, model.Report{UserID: "u1"})

			Convey("Then the lost race should be retried and both reports counted", func() {
				So(err, ShouldBeNil)
				So(out.Record.BlockCount, ShouldEqual, 3)
				So(fake.callCount(http.MethodPatch), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a writer that always wins the race", t, func() {
		s, fake := newTestStore(t, WithMaxAttempts(3))
		_, err := s.Increment(ctx, model.Report{UserID: "u1"})
		So(err, ShouldBeNil)

		fake.with(func(f *fakeREST) {
			f.beforePatch = func(f *fakeREST) {
				n := *f.rows[0].BlockCount + 1
				f.rows[0].BlockCount = &n
			}
		})

		Convey("Then Increment should give up with ErrConflict", func() {
			_, err := s.Increment(ctx, model.Report{UserID: "u1"})
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			So(fake.callCount(http.MethodPatch), ShouldEqual, 3)
		})
	})

	Convey("Given a hand-managed row with a null count", t, func() {
		s, fake := newTestStore(t)
		fake.with(func(f *fakeREST) { f.rows = []row{{UserID: "legacy"}} })

		Convey("Then it should read as 1 and increment to 2", func() {
			rec, err := s.Get(ctx, "legacy")
			So(err, ShouldBeNil)
			So(rec.BlockCount, ShouldEqual, 1)

			out, err := s.Increment(ctx, model.Report{UserID: "legacy"})
			So(err, ShouldBeNil)
			So(out.Created, ShouldBeFalse)
			So(out.Record.BlockCount, ShouldEqual, 2)
		})
	})
}

func TestStore_Failures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a REST endpoint that fails every request", t, func() {
		s, fake := newTestStore(t)
		fake.with(func(f *fakeREST) { f.fail = http.StatusServiceUnavailable })

		Convey("Then reads and writes should surface the server message", func() {
			_, err := s.ListUserIDs(ctx)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "relation is unavailable")

			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusServiceUnavailable)
			So(apiErr.Code, ShouldEqual, "XX000")

			_, err = s.Increment(ctx, model.Report{UserID: "u1"})
			So(err, ShouldNotBeNil)

			So(s.Ping(ctx), ShouldNotBeNil)

			_, err = s.Count(ctx)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a store using the wrong key", t, func() {
		fake := newFakeREST(testKey)
		srv := fake.server()
		defer srv.Close()
		s, err := New(srv.URL, "wrong")
		So(err, ShouldBeNil)

		Convey("Then requests should be rejected", func() {
			err := s.Ping(ctx)
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusUnauthorized)
		})
	})

	Convey("Given an empty user id", t, func() {
		s, fake := newTestStore(t)

		Convey("Then writes should be refused without a round trip", func() {
			_, err := s.Increment(ctx, model.Report{})
			So(err, ShouldEqual, repository.ErrEmptyUser)
			_, err = s.Upsert(ctx, model.Report{})
			So(err, ShouldEqual, repository.ErrEmptyUser)
			So(fake.totalCalls(), ShouldEqual, 0)
		})
	})
}

func TestParseContentRange(t *testing.T) {
	Convey("Given Content-Range values", t, func() {
		n, err := parseContentRange("0-9/42")
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 42)

		n, err = parseContentRange("*/0")
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 0)

		_, err = parseContentRange("0-9/")
		So(err, ShouldNotBeNil)

		_, err = parseContentRange("")
		So(err, ShouldNotBeNil)
	})
}
