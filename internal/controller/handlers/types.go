package handlers

import (
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/service"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки запросов
type Handlers struct {
	userService         *service.UserService
	slotService         *service.SlotService
	bookingService      *service.BookingService
	availabilityService *service.AvailabilityService
	validate            *validator.Validate
	clock               clock.Clock
	loc                 *time.Location
	logger              *zap.Logger
}

// NewHandlers создаёт новый обработчик запросов
func NewHandlers(
	userService *service.UserService,
	slotService *service.SlotService,
	bookingService *service.BookingService,
	availabilityService *service.AvailabilityService,
	clk clock.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userService:         userService,
		slotService:         slotService,
		bookingService:      bookingService,
		availabilityService: availabilityService,
		validate:            validator.New(validator.WithRequiredStructEnabled()),
		clock:               clk,
		loc:                 loc,
		logger:              logger,
	}
}

type SSOLoginRequest struct {
	Token string `json:"token" validate:"required"`
}

type SubjectRequest struct {
	Subject string `json:"subject" validate:"required,max=100"`
}

type SlotRequest struct {
	Subject   string    `json:"subject" validate:"max=100"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

type BulkSlotRequest struct {
	Subject       string    `json:"subject" validate:"max=100"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required"`
	SlotDuration  int       `json:"slot_duration" validate:"required"`
	BreakDuration int       `json:"break_duration" validate:"gte=0"`
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"is_available" validate:"required"`
}

type BookingRequest struct {
	SlotID string `json:"slot_id" validate:"required,uuid"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type RebookingPermissionRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Subject   string `json:"subject" validate:"required,max=100"`
}

type SubjectResponse struct {
	Subject      string `json:"subject"`
	IsConfigured bool   `json:"is_configured"`
}

type AvailabilityResponse struct {
	IsAvailableForBooking bool `json:"is_available_for_booking"`
}
