package controller

import (
	"log/slog"
	"net/http"

	"github.com/bobobo1618/ninesleep/internal/command"
)

// Executor runs one firmware command. *command.Channel implements it.
type Executor interface {
	Execute(cmd command.Command) ([]byte, error)
}

type BedController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type bedControllerImpl struct {
	executor Executor
	logger   *slog.Logger
}

func NewBedController(executor Executor, logger *slog.Logger) BedController {
	return &bedControllerImpl{executor: executor, logger: logger}
}

func (c *bedControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /hello", c.handleHello)
	mux.HandleFunc("GET /variables", c.handleVariables)
	mux.HandleFunc("POST /alarm/{side}", c.handleAlarm)
	mux.HandleFunc("POST /alarm-clear", c.handleAlarmClear)
	mux.HandleFunc("POST /settings", c.handleSettings)
	mux.HandleFunc("POST /temperature-duration/{side}", c.handleTemperatureDuration)
	mux.HandleFunc("POST /temperature/{side}", c.handleTemperature)
	mux.HandleFunc("POST /prime", c.handlePrime)
}
