package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// writeJSON отправляет ответ в JSON
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeDetail отправляет ошибку в виде {"detail": ...}
func (h *Handlers) writeDetail(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]any{"detail": detail})
}

// statusForKind сопоставляет вид ошибки сервиса с HTTP статусом
func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindConflict:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError отправляет ошибку сервиса. Инфраструктурные ошибки логируются
// и скрываются от клиента.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	body := map[string]any{"detail": svcErr.Message}
	for k, v := range svcErr.Details {
		body[k] = v
	}
	h.writeJSON(w, statusForKind(svcErr.Kind), body)
}

// decode читает тело запроса и проверяет его тегами validate
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			h.writeDetail(w, http.StatusBadRequest, "Invalid input")
			return false
		}

		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": "Validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

// pathID разбирает идентификатор из пути
func (h *Handlers) pathID(w http.ResponseWriter, ps httprouter.Params, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ps.ByName(name))
	if err != nil {
		h.writeDetail(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryDate разбирает необязательный параметр date (YYYY-MM-DD)
func (h *Handlers) queryDate(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return nil, true
	}

	date, err := service.ParseDate(raw, h.loc)
	if err != nil {
		h.writeDetail(w, http.StatusBadRequest, "Invalid date format. Use "+DateFormat)
		return nil, false
	}
	return &date, true
}

// queryBool разбирает необязательный логический параметр
func queryBool(r *http.Request, name string, def bool) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}
