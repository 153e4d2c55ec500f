package controller

import (
	"errors"
	"net/http"

	"github.com/bobobo1618/ninesleep/internal/command"
	"github.com/bobobo1618/ninesleep/internal/utils"
)

func (c *bedControllerImpl) handleHello(w http.ResponseWriter, r *http.Request) {
	c.execute(w, command.Command{Code: command.Hello})
}

func (c *bedControllerImpl) handleVariables(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", "text", "json":
	default:
		utils.WriteError(w, http.StatusBadRequest, "invalid 'format' (allowed: text, json)")
		return
	}

	resp, ok := c.run(w, command.Command{Code: command.Variables})
	if !ok {
		return
	}
	if format == "json" {
		utils.WriteJSON(w, http.StatusOK, parseVariables(resp))
		return
	}
	utils.WriteText(w, http.StatusOK, resp)
}

func (c *bedControllerImpl) handleAlarm(w http.ResponseWriter, r *http.Request) {
	side, err := command.ParseSide(r.PathValue("side"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := jsonBodyToHex(w, r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.execute(w, command.Command{Code: side.Pick(command.AlarmLeft, command.AlarmRight), Payload: payload})
}

func (c *bedControllerImpl) handleAlarmClear(w http.ResponseWriter, r *http.Request) {
	c.execute(w, command.Command{Code: command.AlarmClear})
}

func (c *bedControllerImpl) handleSettings(w http.ResponseWriter, r *http.Request) {
	payload, err := jsonBodyToHex(w, r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.execute(w, command.Command{Code: command.Settings, Payload: payload})
}

func (c *bedControllerImpl) handleTemperatureDuration(w http.ResponseWriter, r *http.Request) {
	c.handleSideValue(w, r, command.TemperatureDurationLeft, command.TemperatureDurationRight)
}

func (c *bedControllerImpl) handleTemperature(w http.ResponseWriter, r *http.Request) {
	c.handleSideValue(w, r, command.TemperatureLeft, command.TemperatureRight)
}

// handleSideValue sends the request body as-is to the command for the
// requested side. The firmware interprets the value.
func (c *bedControllerImpl) handleSideValue(w http.ResponseWriter, r *http.Request, left, right command.Code) {
	side, err := command.ParseSide(r.PathValue("side"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := rawBody(w, r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing value in request body")
		return
	}
	c.execute(w, command.Command{Code: side.Pick(left, right), Payload: payload})
}

func (c *bedControllerImpl) handlePrime(w http.ResponseWriter, r *http.Request) {
	payload, err := rawBody(w, r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.execute(w, command.Command{Code: command.Prime, Payload: payload})
}

func (c *bedControllerImpl) execute(w http.ResponseWriter, cmd command.Command) {
	if resp, ok := c.run(w, cmd); ok {
		utils.WriteText(w, http.StatusOK, resp)
	}
}

// run executes cmd and writes the error response itself when it fails.
func (c *bedControllerImpl) run(w http.ResponseWriter, cmd command.Command) ([]byte, bool) {
	resp, err := c.executor.Execute(cmd)
	switch {
	case errors.Is(err, command.ErrNotConnected):
		utils.WriteError(w, http.StatusServiceUnavailable, "not connected")
		return nil, false
	case err != nil:
		c.logger.Error("command failed", "code", int(cmd.Code), "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "command failed")
		return nil, false
	}
	return resp, true
}
