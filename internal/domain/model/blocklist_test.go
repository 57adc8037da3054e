package model

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBlockRecord_ReasonOrEmpty(t *testing.T) {
	Convey("Given block records", t, func() {
		Convey("When the reason is nil", func() {
			rec := BlockRecord{UserID: "u1", BlockCount: 1}

			Convey("Then ReasonOrEmpty should return an empty string", func() {
				So(rec.ReasonOrEmpty(), ShouldEqual, "")
			})
		})

		Convey("When the reason is set", func() {
			reason := "spam"
			rec := BlockRecord{UserID: "u1", Reason: &reason, BlockCount: 3}

			Convey("Then ReasonOrEmpty should return it", func() {
				So(rec.ReasonOrEmpty(), ShouldEqual, "spam")
			})
		})
	})
}
