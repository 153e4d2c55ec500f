package httpapi

import (
	"database/sql"
	"net/http"
)

// NewMux returns a mux with the gateway's own endpoints. Feature modules
// register their routes on it afterwards. db may be nil when the archive
// is not database backed.
func NewMux(firmware FirmwareStatus, db *sql.DB) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, firmware, db)
	return mux
}
