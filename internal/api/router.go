package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-csvmap/docs"
	"go-csvmap/internal/api/handler"
	"go-csvmap/pkg/router"
)

// RegisterRoutes mounts the job API, the swagger UI and, when metrics is not
// nil, the Prometheus endpoint.
func RegisterRoutes(r *router.Router, h *handler.JobHandler, metrics http.Handler) {
	r.GET("/health", h.Health)

	r.POST("/api/v1/jobs", h.CreateJob)
	r.GET("/api/v1/jobs", h.ListJobs)
	// More specific routes first
	r.GET("/api/v1/jobs/*/errors", h.GetJobErrors)
	r.GET("/api/v1/jobs/*/tables", h.GetJobTables)
	// Generic job route last
	r.GET("/api/v1/jobs/*", h.GetJob)

	r.GET("/api/v1/download/*/*", h.DownloadFile)
	r.POST("/api/v1/map", h.MapRecords)

	r.Handle("/swagger/", httpSwagger.WrapHandler)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
}
