package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/onboarding/internal/platform/auth"
)

// AuditEntry records one access to assessment data: who touched whose
// answers or results, how, and with what outcome.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	TenantID   string
	Resource   string
	SubjectID  string
	ResultID   string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere durable.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1/ request as a phi_access event after the handler
// runs, and hands the entry to recorder when one is given. Recorder failures
// are logged and never fail the request.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Resource:   resourceOf(req.URL.Path),
				Action:     actionOf(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: c.Response().Status,
			}
			entry.TenantID, _ = c.Get("tenant_id").(string)
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.SubjectID, entry.ResultID = subjectOf(c, entry.Resource, entry.UserID)

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("tenant", entry.TenantID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("subject_id", entry.SubjectID).
				Str("result_id", entry.ResultID).
				Str("action", entry.Action).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func actionOf(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceOf returns the first path segment below /api/v1/.
func resourceOf(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if seg, _, _ := strings.Cut(rest, "/"); seg != "" {
		return seg
	}
	return "unknown"
}

// subjectOf works out whose data the request touched. Session routes act on
// the caller; result routes name a result id or filter by ?user_id.
func subjectOf(c echo.Context, resource, caller string) (subject, resultID string) {
	if resource != "assessment-results" {
		return caller, ""
	}
	rest := strings.TrimPrefix(c.Request().URL.Path, "/api/v1/assessment-results/")
	if id, err := uuid.Parse(strings.Trim(rest, "/")); err == nil {
		return "", id.String()
	}
	return c.QueryParam("user_id"), ""
}
