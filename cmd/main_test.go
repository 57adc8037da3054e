package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/sift/internal/config"
	"github.com/okian/sift/pkg/logger"
	"github.com/okian/sift/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func memoryConfig() *config.Config {
	cfg := config.New()
	cfg.StoreDriver = config.DriverMemory
	cfg.APISecret = "secret"
	return cfg
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		ctx := context.Background()

		convey.Convey("When configuration comes from the environment", func() {
			t.Setenv("SIFT_ENV_FILE", "does-not-exist.env")
			t.Setenv("SIFT_ADDR", ":9090")
			t.Setenv("SIFT_STORE_DRIVER", "memory")
			t.Setenv("SIFT_MERGE_POLICY", "upsert")

			convey.Convey("Then the service should be built from it", func() {
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")

				svc, err := newService(ctx, cfg)
				convey.So(err, convey.ShouldBeNil)
				convey.So(svc.MergePolicy().String(), convey.ShouldEqual, "upsert")
			})
		})

		convey.Convey("When the merge policy is unknown", func() {
			cfg := memoryConfig()
			cfg.MergePolicy = "replace"

			convey.Convey("Then building the service should fail", func() {
				_, err := newService(ctx, cfg)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the HTTP handler is built", func() {
			cfg := memoryConfig()
			svc, err := newService(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			h := newHandler(ctx, cfg, svc)

			convey.Convey("Then the API and the docs should be served", func() {
				for _, path := range []string{"/health", "/blocklist", "/readyz", "/stats", "/metrics", "/openapi.yaml", "/api-docs"} {
					w := httptest.NewRecorder()
					h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("And an authenticated report should be accepted", func() {
				req := httptest.NewRequest(http.MethodPost, "/report", strings.NewReader(`{"user_id":"u1"}`))
				req.Header.Set("x-api-key", "secret")
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "User u1 reported successfully (count: 1)")
			})
		})

		convey.Convey("When docs and metrics are disabled", func() {
			cfg := memoryConfig()
			cfg.DocsEnabled = false
			cfg.MetricsEnabled = false
			svc, err := newService(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			h := newHandler(ctx, cfg, svc)

			convey.Convey("Then those routes should be absent", func() {
				for _, path := range []string{"/metrics", "/openapi.yaml", "/api-docs"} {
					w := httptest.NewRecorder()
					h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
				}
			})
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a refresh should not panic and metrics should be gathered", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			families, err := metrics.GetRegistry().Gather()
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(families), convey.ShouldBeGreaterThan, 0)
		})
	})
}
