package handlers

import (
	"context"
	"net/http"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/service"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

// HandleGetSubject возвращает закреплённый предмет преподавателя
func (h *Handlers) HandleGetSubject(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	subject, err := h.slotService.GetFacultySubject(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SubjectResponse{Subject: subject, IsConfigured: subject != ""})
}

// HandleSetSubject закрепляет предмет за преподавателем
func (h *Handlers) HandleSetSubject(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	var req SubjectRequest
	if !h.decode(w, r, &req) {
		return
	}

	subject, err := h.slotService.SetFacultySubject(r.Context(), user.ID, req.Subject)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SubjectResponse{Subject: subject, IsConfigured: true})
}

// HandleListSlots возвращает слоты преподавателя (?date=YYYY-MM-DD&future_only=true)
func (h *Handlers) HandleListSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	date, ok := h.queryDate(w, r)
	if !ok {
		return
	}

	slots, err := h.slotService.ListFacultySlots(r.Context(), user.ID, date, queryBool(r, "future_only", false))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, slots)
}

// HandleCreateSlot создаёт одиночный слот
func (h *Handlers) HandleCreateSlot(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	var req SlotRequest
	if !h.decode(w, r, &req) {
		return
	}

	slot, err := h.slotService.CreateSlot(r.Context(), user.ID, service.SlotInput{
		Subject: req.Subject,
		Start:   req.StartTime,
		End:     req.EndTime,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, slot)
}

// HandleBulkCreateSlots нарезает окно на слоты
func (h *Handlers) HandleBulkCreateSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	var req BulkSlotRequest
	if !h.decode(w, r, &req) {
		return
	}

	slots, err := h.slotService.BulkCreateSlots(r.Context(), user.ID, service.BulkSlotInput{
		Subject:       req.Subject,
		WindowStart:   req.StartTime,
		WindowEnd:     req.EndTime,
		SlotDuration:  req.SlotDuration,
		BreakDuration: req.BreakDuration,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, slots)
}

// HandleDeleteSlot удаляет слот без истории бронирований
func (h *Handlers) HandleDeleteSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params, user *model.User) {
	slotID, ok := h.pathID(w, ps, "id")
	if !ok {
		return
	}

	if err := h.slotService.DeleteSlot(r.Context(), user.ID, slotID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteTodaysSlots удаляет сегодняшние слоты
func (h *Handlers) HandleDeleteTodaysSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	result, err := h.slotService.DeleteTodaysSlots(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetAvailability возвращает статус "свободен/занят"
func (h *Handlers) HandleGetAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	available, err := h.slotService.GetAvailability(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AvailabilityResponse{IsAvailableForBooking: available})
}

// HandleSetAvailability переключает статус "свободен/занят"
func (h *Handlers) HandleSetAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	var req AvailabilityRequest
	if !h.decode(w, r, &req) {
		return
	}

	available, err := h.slotService.SetAvailability(r.Context(), user.ID, *req.IsAvailable)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AvailabilityResponse{IsAvailableForBooking: available})
}

// HandleFacultyBookings возвращает бронирования на слоты преподавателя
func (h *Handlers) HandleFacultyBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	bookings, err := h.bookingService.ListFacultyBookings(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookings)
}

// HandleFacultyCancel отменяет бронирование без ограничения по времени
func (h *Handlers) HandleFacultyCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params, user *model.User) {
	bookingID, ok := h.pathID(w, ps, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	booking, err := h.bookingService.CancelBooking(r.Context(), user.ID, bookingID, req.Reason, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, booking)
}

// HandleMarkAbsent отмечает неявку студента
func (h *Handlers) HandleMarkAbsent(w http.ResponseWriter, r *http.Request, ps httprouter.Params, user *model.User) {
	h.markBooking(w, r, ps, user, h.bookingService.MarkAbsent)
}

// HandleMarkCompleted отмечает проведённое занятие
func (h *Handlers) HandleMarkCompleted(w http.ResponseWriter, r *http.Request, ps httprouter.Params, user *model.User) {
	h.markBooking(w, r, ps, user, h.bookingService.MarkCompleted)
}

func (h *Handlers) markBooking(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	user *model.User,
	mark func(ctx context.Context, facultyID, bookingID uuid.UUID) (*model.Booking, error),
) {
	bookingID, ok := h.pathID(w, ps, "id")
	if !ok {
		return
	}

	booking, err := mark(r.Context(), user.ID, bookingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, booking)
}

// HandleAllowRebooking снимает блокировку записи после неявки
func (h *Handlers) HandleAllowRebooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	var req RebookingPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}

	permission, err := h.bookingService.AllowRebooking(r.Context(), user.ID, uuid.MustParse(req.StudentID), req.Subject)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, permission)
}
