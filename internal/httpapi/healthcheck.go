package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/bobobo1618/ninesleep/internal/utils"
)

// FirmwareStatus reports whether the firmware control connection is up.
type FirmwareStatus interface {
	Connected() bool
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	firmware FirmwareStatus
	db       *sql.DB
}

type healthStatus struct {
	Status            string `json:"status"`
	FirmwareConnected bool   `json:"firmware_connected"`
}

func NewHealthchecker(firmware FirmwareStatus, db *sql.DB) healthchecker {
	return &healthcheckerImpl{firmware: firmware, db: db}
}

// handleHealthz answers 200 while the gateway can do its job. A missing
// firmware connection is reported but is not a failure: the firmware dials
// in on its own schedule.
func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		var ok int
		if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
			slog.Error("failed to check database connectivity", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, healthStatus{
		Status:            "ok",
		FirmwareConnected: h.firmware.Connected(),
	})
}

func registerHealthcheck(mux *http.ServeMux, firmware FirmwareStatus, db *sql.DB) {
	healthchecker := NewHealthchecker(firmware, db)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
