package reward

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"smallbiznis-reward/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(f.svc).Register(r)
	return r
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHandlerDistribution(t *testing.T) {
	f := newFixture(t, nil)
	f.seedScenario(t)
	r := newRouter(f)

	w := do(r, http.MethodGet, "/v1/rewards/ranking?date="+runDate)
	require.Equal(t, http.StatusOK, w.Code)
	var preview Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	require.Equal(t, StatusPreview, preview.Status)
	require.Len(t, preview.RankedWorks, 2)

	w = do(r, http.MethodPost, "/v1/rewards/distributions?date="+runDate)
	require.Equal(t, http.StatusCreated, w.Code)
	var res Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, int64(193), res.Summary.Points)

	w = do(r, http.MethodPost, "/v1/rewards/distributions?date="+runDate)
	require.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodGet, "/v1/rewards/runs?date="+runDate)
	require.Equal(t, http.StatusOK, w.Code)
	var runs struct {
		Runs []Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs.Runs, 1)
	require.Equal(t, res.RunID, runs.Runs[0].ID)

	w = do(r, http.MethodGet, "/v1/users/10/rewards?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var rewards UserRewards
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rewards))
	require.Equal(t, int64(2), rewards.Balance)
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t, nil)
	r := newRouter(f)

	cases := []struct {
		name   string
		method string
		target string
		code   int
	}{
		{"missing date", http.MethodPost, "/v1/rewards/distributions", http.StatusUnprocessableEntity},
		{"today", http.MethodPost, "/v1/rewards/distributions?date=2026-01-16", http.StatusUnprocessableEntity},
		{"future preview", http.MethodGet, "/v1/rewards/ranking?date=2026-02-01", http.StatusUnprocessableEntity},
		{"bad run id", http.MethodGet, "/v1/rewards/runs/abc", http.StatusBadRequest},
		{"unknown run", http.MethodGet, "/v1/rewards/runs/42", http.StatusNotFound},
		{"unknown run resume", http.MethodPost, "/v1/rewards/runs/42/distribute", http.StatusNotFound},
		{"unknown user", http.MethodGet, "/v1/users/42/rewards", http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.method, tc.target)
			require.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}

	require.Zero(t, f.count(t, &Run{}))
}
