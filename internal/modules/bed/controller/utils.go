package controller

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobobo1618/ninesleep/internal/codec"
	"github.com/bobobo1618/ninesleep/internal/command"
)

const maxBodyBytes = 64 << 10

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

// rawBody returns the trimmed request body as a command payload.
func rawBody(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := readBody(w, r)
	if err != nil {
		return "", err
	}
	payload := strings.TrimSpace(string(body))
	if !command.ValidPayload(payload) {
		return "", errors.New("request body must be a single line")
	}
	return payload, nil
}

// jsonBodyToHex converts a JSON request body to CBOR and returns it as
// lowercase hex, the form the firmware expects for structured payloads.
func jsonBodyToHex(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := readBody(w, r)
	if err != nil {
		return "", err
	}
	return jsonToHex(body)
}

func jsonToHex(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("invalid JSON body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", errors.New("invalid JSON body: trailing data")
	}

	data, err := codec.Marshal(fromJSON(v))
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return hex.EncodeToString(data), nil
}

// fromJSON turns json.Number values into integers where they fit, so they
// encode as CBOR integers rather than floats or strings.
func fromJSON(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			v[k] = fromJSON(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = fromJSON(e)
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return u
		}
		f, _ := v.Float64()
		return f
	default:
		return v
	}
}

// parseVariables reads the firmware's "name = value" listing. Values are
// typed where the text is unambiguous and kept as strings otherwise.
func parseVariables(resp []byte) map[string]any {
	out := map[string]any{}
	sc := bufio.NewScanner(bytes.NewReader(resp))
	for sc.Scan() {
		name, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = variableValue(strings.TrimSpace(value))
	}
	return out
}

func variableValue(s string) any {
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s
}
