package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/openmeet/scheduler/internal/model"
	"github.com/openmeet/scheduler/internal/service"
	"github.com/openmeet/scheduler/pkg/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Handler struct {
	schedule     *service.ScheduleService
	availability *service.AvailabilityService
	meetings     *service.MeetingService

	healthChecker HealthChecker

	requestTimeout time.Duration

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithScheduleService(s *service.ScheduleService) *Handler {
	h.schedule = s
	return h
}

func (h *Handler) WithAvailabilityService(a *service.AvailabilityService) *Handler {
	h.availability = a
	return h
}

func (h *Handler) WithMeetingService(m *service.MeetingService) *Handler {
	h.meetings = m
	return h
}

// WithRequestTimeout bounds each request's context so collaborator fetches
// cannot block indefinitely; an expired deadline surfaces as Cancelled.
func (h *Handler) WithRequestTimeout(d time.Duration) *Handler {
	h.requestTimeout = d
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if h.requestTimeout > 0 {
		e.Use(middleware.ContextTimeout(h.requestTimeout))
	}

	e.GET("/health", h.healthChecker.HealthCheck())

	e.GET("/teams/:team_id/availability", h.GetTeamAvailability)

	e.GET("/availability", h.ListAvailability)
	e.POST("/availability", h.CreateAvailability)
	e.PATCH("/availability/:id", h.UpdateAvailability)
	e.DELETE("/availability/:id", h.DeleteAvailability)

	e.POST("/meetings", h.CreateMeeting)
	e.GET("/meetings/:id", h.GetMeeting)
	e.PATCH("/meetings/:id", h.UpdateMeeting)
	e.DELETE("/meetings/:id", h.DeleteMeeting)
}

func (h *Handler) GetTeamAvailability(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	query, serr := teamAvailabilityQuery(e)
	if serr != nil {
		l.Warn("invalid availability query", zap.String("error", serr.Message))
		return h.transportError(e, serr)
	}

	l.Info("getting team availability",
		zap.String("team_id", query.TeamID),
		zap.Time("window_start", query.WindowStart),
		zap.Time("window_end", query.WindowEnd))

	res, serr := h.schedule.TeamAvailability(e.Request().Context(), query)
	if serr != nil {
		l.Error("failed to get team availability", zap.String("team_id", query.TeamID), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.JSON(http.StatusOK, res)
}

func teamAvailabilityQuery(e echo.Context) (*model.TeamAvailabilityQuery, *service.Error) {
	query := &model.TeamAvailabilityQuery{
		TeamID:     e.Param("team_id"),
		Mode:       model.IntersectionMode(e.QueryParam("mode")),
		Preference: model.SlotPreference(e.QueryParam("preference")),
		Timezone:   e.QueryParam("tz"),
	}

	start, err := time.Parse(time.RFC3339, e.QueryParam("start"))
	if err != nil {
		return nil, service.NewError(service.ErrorCodeInvalidArgument, "start: expected RFC3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, e.QueryParam("end"))
	if err != nil {
		return nil, service.NewError(service.ErrorCodeInvalidArgument, "end: expected RFC3339 timestamp")
	}
	query.WindowStart = start
	query.WindowEnd = end

	for param, dst := range map[string]*int{
		"duration":    &query.DurationMinutes,
		"granularity": &query.GranularityMinutes,
		"k":           &query.K,
	} {
		raw := e.QueryParam(param)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, service.NewError(service.ErrorCodeInvalidArgument, fmt.Sprintf("%s: expected integer", param))
		}
		*dst = v
	}

	return query, nil
}

func (h *Handler) ListAvailability(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	userID := e.QueryParam("user_id")
	if userID == "" {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidArgument, "user_id: required"))
	}

	l.Debug("listing availability rules", zap.String("user_id", userID))

	rules, serr := h.availability.ListRules(e.Request().Context(), userID)
	if serr != nil {
		l.Error("failed to list availability rules", zap.String("user_id", userID), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.JSON(http.StatusOK, struct {
		Availabilities []*model.AvailabilityRule `json:"availabilities"`
	}{Availabilities: rules})
}

func (h *Handler) CreateAvailability(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		UserID        string     `json:"user_id" validate:"required"`
		DayOfWeek     *int       `json:"day_of_week" validate:"required"`
		StartTime     string     `json:"start_time" validate:"required"`
		EndTime       string     `json:"end_time" validate:"required"`
		IsRecurring   *bool      `json:"is_recurring"`
		EffectiveDate *time.Time `json:"effective_date"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	recurring := true
	if req.IsRecurring != nil {
		recurring = *req.IsRecurring
	}

	l.Info("creating availability rule",
		zap.String("user_id", req.UserID),
		zap.Int("day_of_week", *req.DayOfWeek))

	rule, serr := h.availability.CreateRule(e.Request().Context(), &model.AvailabilityRule{
		UserID:        req.UserID,
		DayOfWeek:     *req.DayOfWeek,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		IsRecurring:   recurring,
		EffectiveDate: req.EffectiveDate,
	})
	if serr != nil {
		l.Error("failed to create availability rule", zap.String("user_id", req.UserID), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.JSON(http.StatusCreated, rule)
}

func (h *Handler) UpdateAvailability(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		UserID    string `json:"user_id" validate:"required"`
		DayOfWeek *int   `json:"day_of_week" validate:"required"`
		StartTime string `json:"start_time" validate:"required"`
		EndTime   string `json:"end_time" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	ruleID := e.Param("id")

	l.Info("updating availability rule", zap.String("rule_id", ruleID), zap.String("user_id", req.UserID))

	rule, serr := h.availability.UpdateRule(e.Request().Context(), &model.AvailabilityRule{
		ID:          ruleID,
		UserID:      req.UserID,
		DayOfWeek:   *req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsRecurring: true,
	})
	if serr != nil {
		l.Error("failed to update availability rule", zap.String("rule_id", ruleID), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.JSON(http.StatusOK, rule)
}

func (h *Handler) DeleteAvailability(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	ruleID := e.Param("id")
	userID := e.QueryParam("user_id")
	if userID == "" {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidArgument, "user_id: required"))
	}

	l.Info("deleting availability rule", zap.String("rule_id", ruleID), zap.String("user_id", userID))

	if serr := h.availability.DeleteRule(e.Request().Context(), ruleID, userID); serr != nil {
		l.Error("failed to delete availability rule", zap.String("rule_id", ruleID), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateMeeting(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	meeting := &model.Meeting{}

	if err := h.decodeRequest(e, meeting); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("creating meeting",
		zap.String("title", meeting.Title),
		zap.Int("attendees", len(meeting.AttendeeIDs)))

	created, serr := h.meetings.CreateMeeting(e.Request().Context(), meeting)
	if serr != nil {
		l.Error("failed to create meeting", zap.String("title", meeting.Title), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.JSON(http.StatusCreated, created)
}

func (h *Handler) GetMeeting(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	meetingID := e.Param("id")

	meeting, serr := h.meetings.GetMeeting(e.Request().Context(), meetingID)
	if serr != nil {
		l.Error("failed to get meeting", zap.String("meeting_id", meetingID), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.JSON(http.StatusOK, meeting)
}

func (h *Handler) UpdateMeeting(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	meeting := &model.Meeting{}

	if err := h.decodeRequest(e, meeting); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}
	meeting.ID = e.Param("id")

	l.Info("updating meeting", zap.String("meeting_id", meeting.ID))

	updated, serr := h.meetings.UpdateMeeting(e.Request().Context(), meeting)
	if serr != nil {
		l.Error("failed to update meeting", zap.String("meeting_id", meeting.ID), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteMeeting(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	meetingID := e.Param("id")

	l.Info("deleting meeting", zap.String("meeting_id", meetingID))

	if serr := h.meetings.DeleteMeeting(e.Request().Context(), meetingID); serr != nil {
		l.Error("failed to delete meeting", zap.String("meeting_id", meetingID), zap.Any("error", serr))
		return h.transportError(e, serr)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) decodeRequest(e echo.Context, req any) *service.Error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}

	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	switch err.Code {
	case service.ErrorCodeInvalidArgument, service.ErrorCodeInvalidBody:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeExists:
		return e.JSON(http.StatusConflict, response)
	case service.ErrorCodeUpstreamUnavailable:
		return e.JSON(http.StatusBadGateway, response)
	case service.ErrorCodeCancelled:
		return e.JSON(http.StatusGatewayTimeout, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
