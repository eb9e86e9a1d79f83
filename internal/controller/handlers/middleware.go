package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/julienschmidt/httprouter"
)

type ctxKey struct{}

// UserHandle - обработчик, которому нужен аутентифицированный пользователь
type UserHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, user *model.User)

// UserFromContext возвращает пользователя, положенного Authenticate
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(*model.User)
	return user, ok
}

// Authenticate проверяет bearer токен и кладёт пользователя в контекст
func (h *Handlers) Authenticate(next UserHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.writeDetail(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		user, err := h.userService.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			h.writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, user)
		next(w, r.WithContext(ctx), ps, user)
	}
}

// RequireFaculty пропускает только преподавателей
func (h *Handlers) RequireFaculty(next UserHandle) httprouter.Handle {
	return h.Authenticate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, user *model.User) {
		if !user.IsFaculty() {
			h.writeDetail(w, http.StatusForbidden, "Only faculty can access this resource")
			return
		}
		next(w, r, ps, user)
	})
}

// RequireStudent пропускает только студентов
func (h *Handlers) RequireStudent(next UserHandle) httprouter.Handle {
	return h.Authenticate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, user *model.User) {
		if !user.IsStudent() {
			h.writeDetail(w, http.StatusForbidden, "Only students can access this resource")
			return
		}
		next(w, r, ps, user)
	})
}
