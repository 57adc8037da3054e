package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// slowStore blocks until its context is done.
type slowStore struct {
	*repository.MemoryStore
}

func (s slowStore) ListUserIDs(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()

	Convey("Given an instrumented memory store", t, func() {
		inner := repository.NewMemoryStore()
		store := repository.Instrument(inner, "memory", 0)

		Convey("Then calls should pass through", func() {
			out, err := store.Increment(ctx, model.Report{UserID: "u1"})
			So(err, ShouldBeNil)
			So(out.Created, ShouldBeTrue)

			_, err = store.Upsert(ctx, model.Report{UserID: "u1"})
			So(err, ShouldBeNil)

			ids, err := store.ListUserIDs(ctx)
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"u1"})

			_, err = store.Get(ctx, "missing")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			So(store.Ping(ctx), ShouldBeNil)
			So(store.Close(), ShouldBeNil)
			_, err = inner.Count(ctx)
			So(errors.Is(err, repository.ErrStoreClose), ShouldBeTrue)
		})

		Convey("Then a nil store should stay nil", func() {
			So(repository.Instrument(nil, "memory", 0), ShouldBeNil)
		})
	})

	Convey("Given an instrumented store with a timeout", t, func() {
		store := repository.Instrument(slowStore{repository.NewMemoryStore()}, "slow", 20*time.Millisecond)

		Convey("Then slow calls should be cut off", func() {
			_, err := store.ListUserIDs(ctx)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}
