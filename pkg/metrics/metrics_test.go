package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created and enabled", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Enabled(), ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithPrometheusRegistry(registry),
			)
			manager.RecordAuthFailure()

			Convey("Then the metric names should use them", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_namespace_test_subsystem_auth_failures_total")
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			_ = NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should panic on duplicate registration", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		manager := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

		Convey("When recording reports", func() {
			manager.RecordReport("increment", true)
			manager.RecordReport("increment", false)
			manager.RecordReport("increment", false)

			Convey("Then they should be split by outcome", func() {
				So(testutil.ToFloat64(manager.reports.WithLabelValues("increment", "created")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.reports.WithLabelValues("increment", "updated")), ShouldEqual, 2)
			})
		})

		Convey("When recording store operations", func() {
			manager.RecordStoreOperation("memory", "increment", 1.5, false)
			manager.RecordStoreOperation("memory", "increment", 2.5, true)

			Convey("Then only failures should count as errors", func() {
				So(testutil.ToFloat64(manager.storeErrors.WithLabelValues("memory", "increment")), ShouldEqual, 1)
			})
		})

		Convey("When updating gauges", func() {
			manager.UpdateBlocklistUsers(42)
			manager.UpdateSystem(1024, 7, 0.3)

			Convey("Then the gauges should hold the values", func() {
				So(testutil.ToFloat64(manager.blocklistUsers), ShouldEqual, 42)
				So(testutil.ToFloat64(manager.systemMemoryUsage), ShouldEqual, 1024)
				So(testutil.ToFloat64(manager.systemGoroutineCount), ShouldEqual, 7)
			})
		})

		Convey("When recording HTTP requests and errors", func() {
			manager.RecordHTTPRequest("report", "POST", "403", 1)
			manager.RecordError("report", "POST", "client_error", "medium")

			Convey("Then the counters should increase", func() {
				So(testutil.ToFloat64(manager.httpRequests.WithLabelValues("report", "POST", "403")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.errorRateByType.WithLabelValues("client_error", "medium")), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a disabled manager", t, func() {
		manager := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithMetricsEnabled(false))
		manager.RecordAuthFailure()
		manager.UpdateBlocklistUsers(5)

		Convey("Then nothing should be recorded", func() {
			So(testutil.ToFloat64(manager.authFailures), ShouldEqual, 0)
			So(testutil.ToFloat64(manager.blocklistUsers), ShouldEqual, 0)
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Then package helpers should not panic", func() {
			So(func() {
				RecordReport("upsert", true)
				RecordAuthFailure()
				UpdateBlocklistUsers(3)
				RecordHTTPRequest("blocklist", "GET", "200", 2)
				RecordStoreOperation("sqlite", "list", 0.4, false)
				RecordError("blocklist", "GET", "server_error", "high")
				UpdateSystem(2048, 10, 0)
			}, ShouldNotPanic)
		})

		Convey("Then the registry should expose sift series", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager reconfigured with a namespace", t, func() {
		Configure(WithNamespace("edge"), WithHistogramBuckets([]float64{5, 50}))
		defer Configure()

		RecordAuthFailure()

		Convey("Then the global registry should expose the renamed series", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(names, ShouldContain, "edge_blocklist_auth_failures_total")
			So(names, ShouldNotContain, "sift_blocklist_auth_failures_total")
		})

		Convey("When disabled through options", func() {
			Configure(WithMetricsEnabled(false))

			Convey("Then the global manager should stop recording", func() {
				So(globalManager.Load().Enabled(), ShouldBeFalse)
			})
		})
	})
}
