// Package bed exposes the firmware control commands over HTTP.
package bed

import (
	"log/slog"
	"net/http"

	"github.com/bobobo1618/ninesleep/internal/modules/bed/controller"
)

func RegisterFeature(mux *http.ServeMux, executor controller.Executor, logger *slog.Logger) {
	bedController := controller.NewBedController(executor, logger)
	bedController.RegisterRoutes(mux)
}
