package schedule

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medisched/medisched/internal/platform/apperror"
	"github.com/medisched/medisched/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.PUT("/doctors/:id/schedule-template", h.PutTemplate, auth.RequireRole(auth.RoleDoctor))
	api.GET("/doctors/:id/schedule-template", h.GetTemplate)
	api.PUT("/hospitals/:id/hours", h.PutHours, auth.RequireRole(auth.RoleStaff))
	api.GET("/hospitals/:id/hours", h.GetHours)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

type putTemplateBody struct {
	HospitalID uuid.UUID `json:"hospital_id"`
	Entries    []Entry   `json:"entries"`
}

func (h *Handler) PutTemplate(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	var body putTemplateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.HospitalID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "hospital_id is required")
	}
	if err := h.svc.PutTemplate(c.Request().Context(), doctorID, body.HospitalID, body.Entries); err != nil {
		return httpError(err)
	}
	entries, err := h.svc.Template(c.Request().Context(), doctorID, body.HospitalID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *Handler) GetTemplate(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	hospitalID, err := uuid.Parse(c.QueryParam("hospital_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
	}
	entries, err := h.svc.Template(c.Request().Context(), doctorID, hospitalID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"entries": entries})
}

type putHoursBody struct {
	Open24x7 bool       `json:"open_24x7"`
	Days     []DayHours `json:"days"`
}

func (h *Handler) PutHours(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	var body putHoursBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.PutHospitalHours(c.Request().Context(), hospitalID, body.Open24x7, body.Days); err != nil {
		return httpError(err)
	}
	hh, err := h.svc.HospitalHours(c.Request().Context(), hospitalID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hh)
}

func (h *Handler) GetHours(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	hh, err := h.svc.HospitalHours(c.Request().Context(), hospitalID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hh)
}
