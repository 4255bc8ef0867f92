package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"device_loan_service/app"
	"device_loan_service/db"
	"device_loan_service/models"
	"device_loan_service/session"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Srv struct {
	Repo      *db.Repo
	AppSess   *session.AppSessionStore
	WebOrigin string
	Cfg       app.Config
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:      db.NewRepo(a.DB),
		AppSess:   a.AppSessions(),
		WebOrigin: a.Config.WebOrigin,
		Cfg:       a.Config,
	}
}

// --- helpers ---

func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.WebOrigin, "https://")
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(maxAge / time.Second),
	})
}

func (s *Srv) clearAppCookie(w http.ResponseWriter) {
	secure := strings.HasPrefix(s.WebOrigin, "https://")
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// issueSession creates the Redis session, sets the cookie and records the
// login snapshot.
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, userID, ip, ua string) error {
	_ = s.Repo.TouchUserLogin(ctx, userID, ip, ua) // snapshot only, never blocks login
	id := uuid.NewString()
	if err := s.AppSess.Create(ctx, id, userID); err != nil {
		return err
	}
	s.setAppCookie(w, id, s.Cfg.SessionTTL)
	return nil
}

func currentUserID(c *gin.Context) string {
	v, _ := c.Get("userID")
	uid, _ := v.(string)
	return uid
}

func isAdmin(c *gin.Context) bool {
	v, _ := c.Get("isAdmin")
	b, _ := v.(bool)
	return b
}

// writeRepoError maps repo sentinels onto HTTP statuses. Unknown errors come
// back as a generic 500 so database internals never leak.
func writeRepoError(c *gin.Context, err error) {
	var unavailable *db.UnavailableError
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, app.H{"error": "not found"})
	case errors.Is(err, db.ErrCodeTaken),
		errors.Is(err, db.ErrUsernameTaken),
		errors.Is(err, db.ErrLetterTaken):
		c.JSON(http.StatusConflict, app.H{"error": err.Error()})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusConflict, app.H{
			"error":      "device unavailable",
			"deviceCode": unavailable.DeviceCode,
			"start":      unavailable.Start.Format("2006-01-02"),
			"end":        unavailable.End.Format("2006-01-02"),
		})
	case errors.Is(err, db.ErrInvalidStatus),
		errors.Is(err, db.ErrItemSetMismatch),
		errors.Is(err, db.ErrDuplicateItemRef),
		errors.Is(err, db.ErrDeviceNotLoanable),
		errors.Is(err, db.ErrRequestNotPending),
		errors.Is(err, db.ErrNoItems),
		errors.Is(err, db.ErrBadQuantity),
		errors.Is(err, models.ErrAmbiguousDeviceRef):
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, app.H{"error": "internal error"})
	}
}

// writeBindError turns validator failures into a field/message list; other
// bind failures get the raw message.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]app.H, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, app.H{
				"field":   fe.Namespace(),
				"message": "failed on rule: " + fe.Tag(),
			})
		}
		c.JSON(http.StatusBadRequest, app.H{"error": "validation failed", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
}

// parseDate accepts calendar dates as YYYY-MM-DD, UTC.
func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
