package controller

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/controller/handlers"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

type HTTPController struct {
	handlers *handlers.Handlers
	origins  []string
	logger   *zap.Logger
}

func NewHTTPController(h *handlers.Handlers, origins []string, logger *zap.Logger) *HTTPController {
	return &HTTPController{
		handlers: h,
		origins:  origins,
		logger:   logger,
	}
}

// Handler собирает маршруты и middleware: CORS -> логирование -> роутер
func (c *HTTPController) Handler() http.Handler {
	router := httprouter.New()
	c.registerRoutes(router)

	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		c.logger.Error("Handler panicked",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Any("panic", v),
		)
		http.Error(w, `{"detail":"Internal server error"}`, http.StatusInternalServerError)
	}

	origins := c.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	return c.logRequests(corsHandler)
}

// registerRoutes регистрирует все обработчики
func (c *HTTPController) registerRoutes(router *httprouter.Router) {
	h := c.handlers

	router.GET(apiPrefix+"/health", h.HandleHealth)
	router.POST(apiPrefix+"/auth/sso", h.HandleSSOLogin)
	router.GET(apiPrefix+"/users/me", h.Authenticate(h.HandleMe))

	// Преподаватель
	router.GET(apiPrefix+"/faculty/subject", h.RequireFaculty(h.HandleGetSubject))
	router.POST(apiPrefix+"/faculty/subject", h.RequireFaculty(h.HandleSetSubject))
	router.GET(apiPrefix+"/faculty/slots", h.RequireFaculty(h.HandleListSlots))
	router.POST(apiPrefix+"/faculty/slots", h.RequireFaculty(h.HandleCreateSlot))
	router.POST(apiPrefix+"/faculty/slots/bulk", h.RequireFaculty(h.HandleBulkCreateSlots))
	router.DELETE(apiPrefix+"/faculty/slots/:id", h.RequireFaculty(h.HandleDeleteSlot))
	router.DELETE(apiPrefix+"/faculty/today-slots", h.RequireFaculty(h.HandleDeleteTodaysSlots))
	router.GET(apiPrefix+"/faculty/availability", h.RequireFaculty(h.HandleGetAvailability))
	router.POST(apiPrefix+"/faculty/availability", h.RequireFaculty(h.HandleSetAvailability))
	router.GET(apiPrefix+"/faculty/bookings", h.RequireFaculty(h.HandleFacultyBookings))
	router.POST(apiPrefix+"/faculty/bookings/:id/cancel", h.RequireFaculty(h.HandleFacultyCancel))
	router.POST(apiPrefix+"/faculty/bookings/:id/absent", h.RequireFaculty(h.HandleMarkAbsent))
	router.POST(apiPrefix+"/faculty/bookings/:id/complete", h.RequireFaculty(h.HandleMarkCompleted))
	router.POST(apiPrefix+"/faculty/rebooking-permissions", h.RequireFaculty(h.HandleAllowRebooking))

	// Студент
	router.GET(apiPrefix+"/student/slots", h.RequireStudent(h.HandleAvailableSlots))
	router.GET(apiPrefix+"/student/teacher-status", h.RequireStudent(h.HandleTeacherStatus))
	router.GET(apiPrefix+"/student/slots-debug", h.RequireStudent(h.HandleSlotsDebug))
	router.GET(apiPrefix+"/student/bookings", h.RequireStudent(h.HandleStudentBookings))
	router.POST(apiPrefix+"/student/bookings", h.RequireStudent(h.HandleBook))
	router.POST(apiPrefix+"/student/bookings/:id/cancel", h.RequireStudent(h.HandleStudentCancel))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests пишет строку лога на каждый запрос
func (c *HTTPController) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		c.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
