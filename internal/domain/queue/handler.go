package queue

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/frontdesk/frontdesk/internal/platform/auth"
	"github.com/frontdesk/frontdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole("admin", "physician", "nurse", "registrar")
	anyUser := auth.RequireRole("admin", "physician", "nurse", "registrar", "patient")

	api.POST("/appointments", h.Book, anyUser)
	api.GET("/appointments/:id", h.Get, staff)
	api.POST("/appointments/priority", h.InsertPriority, staff)
	api.POST("/appointments/:id/no-show", h.MarkNoShow, staff)
	api.POST("/appointments/:id/reschedule", h.Reschedule, anyUser)
	api.PATCH("/appointments/:id/status", h.Transition, staff)

	api.GET("/doctors/:id/queue", h.DoctorQueue, staff)
	api.GET("/patients/:id/appointments/next", h.NextForPatient, anyUser)
	api.GET("/patients/:id/appointments", h.History, anyUser)
}

type bookRequest struct {
	PatientID    uuid.UUID  `json:"patient_id"`
	DepartmentID uuid.UUID  `json:"department_id"`
	DoctorID     *uuid.UUID `json:"doctor_id,omitempty"`
	Date         string     `json:"appointment_date"`
	Reason       string     `json:"reason"`
	Notes        *string    `json:"notes,omitempty"`
}

type priorityRequest struct {
	PatientID      uuid.UUID `json:"patient_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	Date           string    `json:"appointment_date"`
	TargetPosition int       `json:"target_position"`
	Reason         string    `json:"reason"`
	Notes          *string   `json:"notes,omitempty"`
}

type transitionRequest struct {
	Status Status `json:"status"`
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// httpError maps scheduling errors onto HTTP statuses. Validation failures
// are 400, missing resources 404, business conflicts 409.
func httpError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	var dup *DuplicateBookingError
	var full *DepartmentFullError
	var unavailable *PreferredDoctorUnavailableError
	if errors.As(err, &dup) || errors.As(err, &full) || errors.As(err, &unavailable) ||
		errors.Is(err, ErrNoDoctorAvailable) || errors.Is(err, ErrNoSlotAvailable) ||
		errors.Is(err, ErrQueueConflict) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_date, want YYYY-MM-DD")
	}
	appt, err := h.svc.Book(c.Request().Context(), BookRequest{
		PatientID:    req.PatientID,
		DepartmentID: req.DepartmentID,
		DoctorID:     req.DoctorID,
		Date:         date,
		Reason:       req.Reason,
		Notes:        req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) InsertPriority(c echo.Context) error {
	var req priorityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_date, want YYYY-MM-DD")
	}
	result, err := h.svc.InsertPriority(c.Request().Context(), PriorityRequest{
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		Date:           date,
		TargetPosition: req.TargetPosition,
		Reason:         req.Reason,
		Notes:          req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	replacement, err := h.svc.MarkNoShow(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, replacement)
}

// Reschedule moves an appointment to the doctor's next open day. Patients may
// only reschedule their own appointments; staff may reschedule any.
func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	requesting := uuid.Nil
	if auth.HasRole(c, "patient") && !auth.HasRole(c, "admin") {
		userID := auth.UserIDFromContext(c.Request().Context())
		if userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
		}
		requesting, err = uuid.Parse(userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid identity")
		}
	}
	appt, err := h.svc.Reschedule(c.Request().Context(), id, requesting)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == StatusNoShow {
		replacement, err := h.svc.MarkNoShow(c.Request().Context(), id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, replacement)
	}
	appt, err := h.svc.Transition(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) DoctorQueue(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	date := DateOnly(time.Now())
	if d := c.QueryParam("date"); d != "" {
		date, err = parseDate(d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		}
	}
	queue, err := h.svc.DoctorQueue(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"doctor_id": doctorID,
		"date":      date.Format("2006-01-02"),
		"queue":     queue,
		"count":     len(queue),
	})
}

func (h *Handler) NextForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.NextForPatient(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
