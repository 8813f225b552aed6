package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-csvmap/internal/api/handler"
	"go-csvmap/internal/pipeline"
	"go-csvmap/internal/sink"
	"go-csvmap/internal/store"
	"go-csvmap/pkg/router"
)

func TestRegisterRoutes(t *testing.T) {
	dir := t.TempDir()
	st, err := store.InitDB(filepath.Join(dir, "csvmap.db"))
	require.NoError(t, err)
	defer st.Close()

	log, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	metrics := sink.NewMetrics(reg)
	h := handler.NewJobHandler(context.Background(), st, pipeline.Options{
		OutputDir: filepath.Join(dir, "output"),
		Metrics:   metrics,
		Log:       log,
	})

	r := router.New(log)
	RegisterRoutes(r, h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.JSONEq(t, `[]`, get("/api/v1/jobs").Body.String())
	assert.Equal(t, http.StatusNotFound, get("/api/v1/jobs/missing").Code)

	doc := get("/swagger/doc.json")
	require.Equal(t, http.StatusOK, doc.Code)
	assert.Contains(t, doc.Body.String(), `"/jobs/{id}/tables"`)

	rec := httptest.NewRecorder()
	body := `{"mapping": {"id": "id"}, "records": [{"id": 1}, {"id": 2}]}`
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/map", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	m := get("/metrics")
	require.Equal(t, http.StatusOK, m.Code)
	assert.Contains(t, m.Body.String(), `csvmap_rows_written_total{table="root"} 2`)
}
