package httptransport_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	httptransport "zonegate/internal/transport/http"
	"zonegate/pkg/testutil"
)

type staticHealth struct {
	err error
}

func (h staticHealth) Health(context.Context) error {
	return h.err
}

type pingRegistrar struct{}

func (pingRegistrar) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestHealthzAlwaysOK(t *testing.T) {
	router := httptransport.NewRouter(nil)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "ok")
}

func TestReadyzReflectsDependencyHealth(t *testing.T) {
	testutil.Given(t, "all dependencies are healthy", func(t *testing.T) {
		router := httptransport.NewRouter(map[string]httptransport.HealthChecker{
			"postgres": staticHealth{},
			"redis":    staticHealth{},
		})

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/readyz"))

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "ready")
	})

	testutil.Given(t, "one dependency is down", func(t *testing.T) {
		router := httptransport.NewRouter(map[string]httptransport.HealthChecker{
			"postgres": staticHealth{},
			"redis":    staticHealth{err: errors.New("connection refused")},
		})

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/readyz"))

		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		testutil.AssertJSONContains(t, rr, "status", "degraded")
		testutil.AssertJSONContains(t, rr, "redis", "connection refused")
	})
}

func TestMetricsEndpointIsExposed(t *testing.T) {
	router := httptransport.NewRouter(nil)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

	testutil.AssertStatusOK(t, rr)
}

func TestHandlersAreMounted(t *testing.T) {
	router := httptransport.NewRouter(nil, pingRegistrar{})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/ping"))

	testutil.AssertStatus(t, rr, http.StatusNoContent)
}
