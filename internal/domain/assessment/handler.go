package assessment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/onboarding/internal/platform/auth"
	"github.com/ehr/onboarding/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// The caller's own assessment, any authenticated user
	api.POST("/assessments", h.StartAssessment)
	api.GET("/assessments/current", h.GetCurrentAssessment)
	api.DELETE("/assessments/current", h.ClearAssessment)
	api.POST("/assessments/current/responses", h.SubmitResponse)
	api.POST("/assessments/current/emergency/acknowledge", h.AcknowledgeEmergency)
	api.POST("/assessments/current/submit", h.SubmitAssessment)
	api.GET("/assessments/questions/:id", h.GetQuestion)

	// Stored results, clinical staff only
	review := api.Group("", auth.RequireRole(auth.RoleClinician))
	review.GET("/assessment-results", h.ListResults)
	review.GET("/assessment-results/:id", h.GetResult)
}

type sideEffectView struct {
	Type string     `json:"type"`
	Data SideEffect `json:"data"`
}

type turnView struct {
	Session      Session                  `json:"session"`
	NextQuestion *Question                `json:"nextQuestion,omitempty"`
	Emergency    *EmergencyProtocol       `json:"emergency,omitempty"`
	Results      *HealthAssessmentResults `json:"results,omitempty"`
	Complete     bool                     `json:"complete"`
	Persisted    bool                     `json:"persisted"`
	SideEffects  []sideEffectView         `json:"sideEffects"`
}

func newTurnView(t *Turn) turnView {
	v := turnView{
		Session:      t.Session,
		NextQuestion: t.NextQuestion,
		Emergency:    t.Emergency,
		Results:      t.Results,
		Complete:     t.Complete,
		Persisted:    t.Persisted,
		SideEffects:  make([]sideEffectView, 0, len(t.SideEffects)),
	}
	for _, e := range t.SideEffects {
		v.SideEffects = append(v.SideEffects, sideEffectView{Type: e.Kind(), Data: e})
	}
	return v
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledgedBy"`
}

func currentUser(c echo.Context) (string, error) {
	uid := auth.UserIDFromContext(c.Request().Context())
	if uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	return uid, nil
}

// httpError maps engine and service errors onto status codes.
func httpError(err error) error {
	var (
		verr *ValidationError
		qerr *UnknownQuestionError
	)
	switch {
	case errors.Is(err, ErrNoActiveSession):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &verr), errors.As(err, &qerr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionComplete), errors.Is(err, ErrAssessmentIncomplete),
		errors.Is(err, ErrEmergencyPending), errors.Is(err, ErrNoPendingEmergency):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) StartAssessment(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Start(c.Request().Context(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newTurnView(t))
}

func (h *Handler) GetCurrentAssessment(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Current(c.Request().Context(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newTurnView(t))
}

func (h *Handler) ClearAssessment(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	h.svc.Clear(c.Request().Context(), uid)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SubmitResponse(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var a Answer
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if a.QuestionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "questionId is required")
	}
	t, err := h.svc.Respond(c.Request().Context(), uid, a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newTurnView(t))
}

func (h *Handler) AcknowledgeEmergency(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var req acknowledgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AcknowledgedBy == "" {
		req.AcknowledgedBy = uid
	}
	t, err := h.svc.AcknowledgeEmergency(c.Request().Context(), uid, req.AcknowledgedBy)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newTurnView(t))
}

func (h *Handler) SubmitAssessment(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var timing Timing
	if err := c.Bind(&timing); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var tp *Timing
	if !timing.StartedAt.IsZero() {
		tp = &timing
	}
	resp, err := h.svc.Submit(c.Request().Context(), uid, tp)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetQuestion(c echo.Context) error {
	q, err := h.svc.Question(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) ListResults(c echo.Context) error {
	pg := pagination.FromContext(c)
	if userID := c.QueryParam("user_id"); userID != "" {
		items, total, err := h.svc.ListResultsByUser(c.Request().Context(), userID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
	}
	items, total, err := h.svc.ListResults(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetResult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.GetResult(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "assessment result not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}
