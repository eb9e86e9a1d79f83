package handlers

import (
	"net/http"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

// HandleAvailableSlots возвращает слоты, доступные студенту (?date=YYYY-MM-DD)
func (h *Handlers) HandleAvailableSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	date, ok := h.queryDate(w, r)
	if !ok {
		return
	}

	slots, err := h.availabilityService.VisibleSlotsForStudent(r.Context(), user.ID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, slots)
}

// HandleTeacherStatus сообщает, свободны ли наставники студента
func (h *Handlers) HandleTeacherStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	report, err := h.availabilityService.TeacherStatus(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleSlotsDebug объясняет видимость слотов для студента
func (h *Handlers) HandleSlotsDebug(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	report, err := h.availabilityService.Debug(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleStudentBookings возвращает бронирования студента
func (h *Handlers) HandleStudentBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	bookings, err := h.bookingService.ListStudentBookings(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bookings)
}

// HandleBook записывает студента на слот
func (h *Handlers) HandleBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params, user *model.User) {
	var req BookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	booking, err := h.bookingService.Book(r.Context(), user.ID, uuid.MustParse(req.SlotID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, booking)
}

// HandleStudentCancel отменяет собственное бронирование студента
func (h *Handlers) HandleStudentCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params, user *model.User) {
	bookingID, ok := h.pathID(w, ps, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	booking, err := h.bookingService.CancelBooking(r.Context(), user.ID, bookingID, req.Reason, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, booking)
}
