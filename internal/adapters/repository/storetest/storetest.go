// Package storetest holds the behaviour every repository.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Options tunes the contract for backends with weaker guarantees.
type Options struct {
	// ConcurrentReporters is the number of goroutines reporting the same user
	// at once. Zero skips the concurrency check.
	ConcurrentReporters int
}

// Open returns a fresh, empty store. It is called once per Convey path.
type Open func(t *testing.T) repository.Store

func reason(s string) *string { return &s }

// Run executes the contract against stores produced by open.
func Run(t *testing.T, name string, open Open, opts Options) {
	Convey(fmt.Sprintf("Given an empty %s store", name), t, func() {
		ctx := context.Background()
		store := open(t)
		Reset(func() { _ = store.Close() })

		Convey("Then it should be reachable and empty", func() {
			So(store.Ping(ctx), ShouldBeNil)

			ids, err := store.ListUserIDs(ctx)
			So(err, ShouldBeNil)
			So(ids, ShouldBeEmpty)

			n, err := store.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("Then Get of an unknown user should return ErrNotFound", func() {
			_, err := store.Get(ctx, "nobody")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a user is reported for the first time", func() {
			out, err := store.Increment(ctx, model.Report{UserID: "u1", Reason: reason("spam")})
			So(err, ShouldBeNil)

			Convey("Then exactly one record with count 1 should exist", func() {
				So(out.Created, ShouldBeTrue)
				So(out.Record.BlockCount, ShouldEqual, 1)
				So(out.Record.ReasonOrEmpty(), ShouldEqual, "spam")

				rec, err := store.Get(ctx, "u1")
				So(err, ShouldBeNil)
				So(rec.BlockCount, ShouldEqual, 1)

				ids, err := store.ListUserIDs(ctx)
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"u1"})
			})

			Convey("And reported again with increment", func() {
				again, err := store.Increment(ctx, model.Report{UserID: "u1", Reason: reason("scam")})
				So(err, ShouldBeNil)

				Convey("Then the count should be 2 and the reason the latest", func() {
					So(again.Created, ShouldBeFalse)
					So(again.Record.BlockCount, ShouldEqual, 2)
					So(again.Record.ReasonOrEmpty(), ShouldEqual, "scam")

					rec, err := store.Get(ctx, "u1")
					So(err, ShouldBeNil)
					So(rec.BlockCount, ShouldEqual, 2)
					So(rec.ReasonOrEmpty(), ShouldEqual, "scam")

					n, err := store.Count(ctx)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 1)
				})
			})

			Convey("And reported again without a reason", func() {
				again, err := store.Increment(ctx, model.Report{UserID: "u1"})
				So(err, ShouldBeNil)

				Convey("Then the stored reason should be cleared", func() {
					So(again.Record.Reason, ShouldBeNil)
					rec, err := store.Get(ctx, "u1")
					So(err, ShouldBeNil)
					So(rec.Reason, ShouldBeNil)
					So(rec.BlockCount, ShouldEqual, 2)
				})
			})

			Convey("And reported again with upsert", func() {
				again, err := store.Upsert(ctx, model.Report{UserID: "u1", Reason: reason("scam")})
				So(err, ShouldBeNil)

				Convey("Then the record should be replaced with count 1", func() {
					So(again.Record.BlockCount, ShouldEqual, 1)
					So(again.Record.ReasonOrEmpty(), ShouldEqual, "scam")

					rec, err := store.Get(ctx, "u1")
					So(err, ShouldBeNil)
					So(rec.BlockCount, ShouldEqual, 1)

					n, err := store.Count(ctx)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 1)
				})
			})
		})

		Convey("When users are only ever upserted", func() {
			for i := 0; i < 3; i++ {
				_, err := store.Upsert(ctx, model.Report{UserID: "u2", Reason: reason(fmt.Sprintf("r%d", i))})
				So(err, ShouldBeNil)
			}

			Convey("Then the count should never pass 1", func() {
				rec, err := store.Get(ctx, "u2")
				So(err, ShouldBeNil)
				So(rec.BlockCount, ShouldEqual, 1)
				So(rec.ReasonOrEmpty(), ShouldEqual, "r2")
			})
		})

		Convey("When several distinct users are reported", func() {
			users := []string{"alice", "bob", "user with spaces & =,.()", "ünïcødé"}
			for _, u := range users {
				_, err := store.Increment(ctx, model.Report{UserID: u})
				So(err, ShouldBeNil)
			}
			_, err := store.Increment(ctx, model.Report{UserID: "bob"})
			So(err, ShouldBeNil)

			Convey("Then the list should hold each distinct id once", func() {
				ids, err := store.ListUserIDs(ctx)
				So(err, ShouldBeNil)
				So(len(ids), ShouldEqual, len(users))
				for _, u := range users {
					So(ids, ShouldContain, u)
				}

				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, len(users))

				rec, err := store.Get(ctx, "user with spaces & =,.()")
				So(err, ShouldBeNil)
				So(rec.BlockCount, ShouldEqual, 1)
			})
		})

		if opts.ConcurrentReporters > 0 {
			Convey("When the same user is reported concurrently", func() {
				var wg sync.WaitGroup
				errs := make(chan error, opts.ConcurrentReporters)
				for i := 0; i < opts.ConcurrentReporters; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if _, err := store.Increment(ctx, model.Report{UserID: "hot"}); err != nil {
							errs <- err
						}
					}()
				}
				wg.Wait()
				close(errs)

				Convey("Then no update should be lost", func() {
					for err := range errs {
						So(err, ShouldBeNil)
					}
					rec, err := store.Get(ctx, "hot")
					So(err, ShouldBeNil)
					So(rec.BlockCount, ShouldEqual, opts.ConcurrentReporters)
				})
			})
		}
	})
}
