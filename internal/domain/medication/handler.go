package medication

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pillbox/pillbox/pkg/pagination"
)

type Handler struct {
	store *Store
	loc   *time.Location
	now   func() time.Time
}

// NewHandler serves the store over HTTP. Dates without a zone are read in loc.
func NewHandler(store *Store, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{store: store, loc: loc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/medications", h.ListMedications)
	api.POST("/medications", h.CreateMedication)
	api.POST("/medications/refresh", h.Refresh)
	api.GET("/medications/due", h.DueOnDay)
	api.GET("/medications/schedule", h.GroupedByTime)
	api.GET("/medications/:id", h.GetMedication)
	api.PUT("/medications/:id", h.UpdateMedication)
	api.DELETE("/medications/:id", h.DeleteMedication)
	api.GET("/medications/:id/logs", h.ListLogs)
	api.POST("/medications/:id/logs", h.CreateLog)
	api.POST("/schedules/:id/toggle", h.ToggleSchedule)
	api.DELETE("/schedules/:id", h.DeleteSchedule)
}

type medicationRequest struct {
	MedicationInput
	Schedules []ScheduleInput `json:"schedules"`
}

func (h *Handler) ListMedications(c echo.Context) error {
	if q := c.QueryParam("q"); q != "" {
		meds, err := h.store.Search(c.Request().Context(), q)
		if err != nil {
			return httpError(err)
		}
		if meds == nil {
			meds = []*Medication{}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"data": meds, "total": len(meds)})
	}

	snap := h.store.Snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":    snap.Medications,
		"total":   len(snap.Medications),
		"loading": snap.Loading,
		"error":   snap.Err,
	})
}

func (h *Handler) GetMedication(c echo.Context) error {
	m, ok := h.store.MedicationByID(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "medication not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateMedication(c echo.Context) error {
	var req medicationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.store.Add(c.Request().Context(), req.MedicationInput, req.Schedules)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	var req medicationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.store.Update(c.Request().Context(), c.Param("id"), req.MedicationInput, req.Schedules)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Refresh(c echo.Context) error {
	if err := h.store.Refresh(c.Request().Context()); err != nil {
		return httpError(err)
	}
	return h.ListMedications(c)
}

func (h *Handler) DueOnDay(c echo.Context) error {
	date, err := h.date(c)
	if err != nil {
		return err
	}
	meds := h.store.DueOnDay(date)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":  date.Format("2006-01-02"),
		"data":  meds,
		"total": len(meds),
	})
}

func (h *Handler) GroupedByTime(c echo.Context) error {
	date, err := h.date(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":   date.Format("2006-01-02"),
		"groups": h.store.GroupedByTimeForDay(date),
	})
}

func (h *Handler) ToggleSchedule(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.ToggleSchedule(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	for _, m := range h.store.Medications() {
		if s, ok := m.Schedule(id); ok {
			return c.JSON(http.StatusOK, s)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteSchedule(c echo.Context) error {
	if err := h.store.DeleteSchedule(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateLog(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.store.MedicationByID(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "medication not found")
	}
	var in LogInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	l, err := h.store.LogDose(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) ListLogs(c echo.Context) error {
	pg := pagination.FromContext(c)
	logs, total, err := h.store.Logs(c.Request().Context(), c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if logs == nil {
		logs = []*MedicationLog{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(logs, total, pg, c.Request().URL.Path))
}

// date reads ?date=YYYY-MM-DD, defaulting to today.
func (h *Handler) date(c echo.Context) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return h.now().In(h.loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", raw, h.loc)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return d, nil
}

func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
