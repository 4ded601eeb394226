package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/icco/taverna"
)

// Response is the envelope around every JSON body.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func renderData(w http.ResponseWriter, status int, data any) {
	if err := Renderer.JSON(w, status, Response{Success: true, Data: data}); err != nil {
		log.Errorw("failed to render JSON", zap.Error(err))
	}
}

// renderError is the single place errors turn into HTTP responses.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = taverna.NotFound("not found")
	}

	kind := taverna.KindOf(err)
	if kind == taverna.KindInternal {
		log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, zap.Error(err))
	} else {
		log.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind.String(), zap.Error(err))
	}

	if err := Renderer.JSON(w, kind.HTTPStatus(), Response{Error: taverna.MessageOf(err)}); err != nil {
		log.Errorw("failed to render JSON", zap.Error(err))
	}
}

// idParam reads a numeric URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := ugcPolicy.Sanitize(chi.URLParamFromCtx(r.Context(), name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, taverna.Invalid("invalid %s", name)
	}
	return id, nil
}

// decodeJSON reads the body into v and checks its validate tags. An empty
// body decodes to the zero value.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return taverna.Invalid("invalid request body")
	}
	return taverna.Validate(v)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
