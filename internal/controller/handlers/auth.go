package handlers

import (
	"net/http"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// HandleHealth отвечает на проверку живости
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"server_time": h.clock.Now().UTC(),
	})
}

// HandleSSOLogin обменивает SSO токен партнёра на токен доступа
func (h *Handlers) HandleSSOLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req SSOLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.userService.Login(r.Context(), req.Token)
	if err != nil {
		h.logger.Info("SSO login rejected", zap.Error(err))
		h.writeDetail(w, http.StatusUnauthorized, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleMe возвращает текущего пользователя
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	h.writeJSON(w, http.StatusOK, user)
}
