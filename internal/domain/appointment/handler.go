package appointment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medisched/medisched/internal/platform/apperror"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments/available-slots", h.AvailableSlots)
	api.POST("/appointments", h.Create, auth.RequireRole(auth.RolePatient, auth.RoleStaff))
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.PATCH("/appointments/:id", h.Update, auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	api.DELETE("/appointments/:id", h.Cancel, auth.RequireRole(auth.RolePatient, auth.RoleStaff))
	api.PATCH("/doctors/:id/walkin-availability", h.SetWalkInAvailability, auth.RequireRole(auth.RoleDoctor))
	api.GET("/doctors/:id/walkin-availability", h.GetWalkInAvailability)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	hospitalID, err := uuid.Parse(c.QueryParam("hospital_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
	}
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}

	slots, err := h.svc.AvailableSlots(c.Request().Context(), doctorID, hospitalID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"available_slots": slots})
}

type createBody struct {
	PatientID  uuid.UUID `json:"patient_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	Date       string    `json:"date"`
	Slot       string    `json:"slot"`
	Type       string    `json:"type"`
	WalkIn     bool      `json:"walk_in"`
	Emergency  bool      `json:"emergency"`
}

func (h *Handler) Create(c echo.Context) error {
	var body createBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Patients book for themselves; staff must name the patient.
	if body.PatientID == uuid.Nil {
		if id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
			body.PatientID = id
		}
	}

	ctx := c.Request().Context()
	if body.WalkIn || body.Emergency {
		a, err := h.svc.RegisterWalkIn(ctx, WalkInInput{
			PatientID:  body.PatientID,
			DoctorID:   body.DoctorID,
			HospitalID: body.HospitalID,
			Emergency:  body.Emergency,
		})
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusCreated, a)
	}

	a, err := h.svc.Book(ctx, BookInput{
		PatientID:  body.PatientID,
		DoctorID:   body.DoctorID,
		HospitalID: body.HospitalID,
		Date:       body.Date,
		Slot:       body.Slot,
		Type:       body.Type,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	if v := c.QueryParam("patient_id"); v != "" {
		patientID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		pg := pagination.FromContext(c)
		items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	if v := c.QueryParam("hospital_id"); v != "" {
		hospitalID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
		}
		date := c.QueryParam("date")
		items, err := h.svc.Queue(c.Request().Context(), hospitalID, date)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"queue": items})
	}

	return echo.NewHTTPError(http.StatusBadRequest, "patient_id or hospital_id is required")
}

type updateBody struct {
	Status        string  `json:"status"`
	Vitals        *string `json:"vitals"`
	Date          string  `json:"date"`
	Slot          string  `json:"slot"`
	Diagnosis     *string `json:"diagnosis"`
	Prescription  *string `json:"prescription"`
	NextVisit     *string `json:"next_visit"`
	PaymentMethod string  `json:"payment_method"`
}

// Update dispatches the PATCH body to exactly one lifecycle operation.
func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body updateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	var a *Appointment
	switch {
	case body.Status != "":
		a, err = h.svc.Transition(ctx, id, body.Status)
	case body.Vitals != nil:
		a, err = h.svc.RecordVitals(ctx, id, *body.Vitals)
	case body.Date != "" && body.Slot != "":
		a, err = h.svc.Reschedule(ctx, id, body.Date, body.Slot)
	case body.Diagnosis != nil || body.Prescription != nil || body.NextVisit != nil:
		a, err = h.svc.RecordOutcome(ctx, id, body.Diagnosis, body.Prescription, body.NextVisit)
	case body.PaymentMethod != "":
		a, err = h.svc.MarkPaid(ctx, id, body.PaymentMethod)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type cancelBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body cancelBody
	// Body is optional on DELETE.
	_ = c.Bind(&body)

	a, err := h.svc.Cancel(c.Request().Context(), id, body.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type walkInFlagBody struct {
	Accepting bool `json:"accepting"`
}

func (h *Handler) SetWalkInAvailability(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	var body walkInFlagBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetWalkInAvailability(c.Request().Context(), doctorID, body.Accepting); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"accepting": body.Accepting})
}

func (h *Handler) GetWalkInAvailability(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	accepting, err := h.svc.WalkInAvailability(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"accepting": accepting})
}
