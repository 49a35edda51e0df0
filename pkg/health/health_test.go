package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"smallbiznis-reward/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)

	h := ProvideHealth(HealthParams{DB: db})

	res := h.Probe(context.Background())
	require.Equal(t, StatusHealthy, res.Status)
	require.Len(t, res.Deps, 1)

	r := gin.New()
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, StatusHealthy, body.Status)
}

func TestReadinessClosedDB(t *testing.T) {
	db := testutil.NewTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	res := ProvideHealth(HealthParams{DB: db}).Probe(context.Background())
	require.Equal(t, StatusUnhealthy, res.Status)
}
