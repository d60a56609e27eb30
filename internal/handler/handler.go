package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"deptportal/internal/attendance"
	"deptportal/internal/auth"
	"deptportal/internal/catalog"
	"deptportal/internal/metrics"
	"deptportal/internal/queue"
	"deptportal/internal/reportcache"
)

// Directory is the slice of the catalog the handlers need beyond what the
// attendance service already consumes.
type Directory interface {
	User(ctx context.Context, id string) (*catalog.User, error)
	SubjectForFaculty(ctx context.Context, facultyID string) (*catalog.Subject, error)
	ReassignFaculty(ctx context.Context, subjectID, facultyID string) error
}

// TokenConfig carries what the token endpoint needs to sign JWTs.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler wires the attendance service to gin routes.
type Handler struct {
	svc    *attendance.Service
	dir    Directory
	cache  *reportcache.Cache // nil when redis is not configured
	q      queue.Queue        // nil when no worker runs
	tokens TokenConfig
}

// New creates a handler.
func New(svc *attendance.Service, dir Directory, cache *reportcache.Cache, q queue.Queue, tokens TokenConfig) *Handler {
	return &Handler{svc: svc, dir: dir, cache: cache, q: q, tokens: tokens}
}

// Register mounts all routes on the engine. authd must already enforce
// bearer tokens.
func (h *Handler) Register(authd *gin.RouterGroup, public *gin.RouterGroup) {
	public.POST("/auth/token", h.IssueToken)

	faculty := authd.Group("", auth.RequireRole(catalog.RoleFaculty, catalog.RoleAdmin))
	faculty.POST("/attendance", h.Mark)
	faculty.GET("/attendance/check", h.Check)
	faculty.GET("/attendance", h.ListBySubject)
	faculty.GET("/faculty/me/subject", h.MySubject)

	authd.GET("/subjects/:subjectID/sessions/count", h.CountSessions)
	authd.GET("/students/me/attendance", auth.RequireRole(catalog.RoleStudent), h.MyAttendance)
	authd.PUT("/subjects/:subjectID/faculty", auth.RequireRole(catalog.RoleAdmin), h.ReassignFaculty)
}

// ---------- Auth ----------

type tokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// IssueToken signs a JWT for a known portal user. Bootstrap issuance only;
// the real contract the service depends on is bearer validation.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	user, err := h.dir.User(c.Request.Context(), req.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "user not found"})
		return
	}
	pair, err := auth.Issue(user.ID, user.Role, h.tokens.Issuer, h.tokens.SigningKey, h.tokens.AccessTTL, h.tokens.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
		"role":          user.Role,
	})
}

// ---------- Upsert engine ----------

type markRequest struct {
	SubjectID string                     `json:"subject_id" binding:"required"`
	Date      string                     `json:"date" binding:"required"`
	Period    int                        `json:"period" binding:"required"`
	Records   []attendance.StudentRecord `json:"records" binding:"required"`
}

// Mark records or amends one session. Responds with the upsert mode so the
// caller knows whether the session was created or overwritten.
func (h *Handler) Mark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unparseable date"})
		return
	}
	claims, _ := auth.FromContext(c)

	sess, created, err := h.svc.Mark(c.Request.Context(), attendance.MarkInput{
		SubjectID: req.SubjectID,
		Date:      date,
		Period:    req.Period,
		FacultyID: claims.Subject,
		Records:   req.Records,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	mode := "update"
	status := http.StatusOK
	if created {
		mode = "create"
		status = http.StatusCreated
	}
	metrics.SessionsWritten.WithLabelValues(mode).Inc()

	// Stale caches are dropped now; the worker re-warms them.
	for _, rec := range sess.Records {
		_ = h.cache.Invalidate(c.Request.Context(), rec.StudentID)
	}
	if h.q != nil {
		if err := h.q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeSessionWritten, SessionID: sess.ID}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}

	c.JSON(status, gin.H{"success": true, "mode": mode, "data": sess})
}

// Check pre-flights whether a Mark for the key would create or update.
func (h *Handler) Check(c *gin.Context) {
	subjectID := c.Query("subject_id")
	date, err := parseDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unparseable date"})
		return
	}
	period := intQuery(c, "period", 0)

	res, err := h.svc.Check(c.Request.Context(), subjectID, date, period)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "exists": res.Exists, "mode": res.Mode, "data": res.Session})
}

// ListBySubject returns sessions for a subject, optionally for one day.
func (h *Handler) ListBySubject(c *gin.Context) {
	subjectID := c.Query("subject_id")
	var date *time.Time
	if raw := c.Query("date"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unparseable date"})
			return
		}
		date = &d
	}
	sessions, err := h.svc.ListBySubject(c.Request.Context(), subjectID, date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sessions})
}

// CountSessions returns the number of classes conducted for a subject.
func (h *Handler) CountSessions(c *gin.Context) {
	n, err := h.svc.CountSessions(c.Request.Context(), c.Param("subjectID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
}

// ---------- Aggregator ----------

// MyAttendance reports the calling student's per-subject rollups, cumulative
// and for the current calendar month. Served from the report cache when
// fresh.
func (h *Handler) MyAttendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	now := time.Now().UTC()

	entries, hit := h.cache.Get(c.Request.Context(), claims.Subject)
	if hit {
		metrics.ReportCacheHits.WithLabelValues("hit").Inc()
	} else {
		metrics.ReportCacheHits.WithLabelValues("miss").Inc()
		var err error
		entries, err = h.svc.StudentReport(c.Request.Context(), claims.Subject, now)
		if err != nil {
			h.writeError(c, err)
			return
		}
		metrics.ReportsComputed.Inc()
		_ = h.cache.Put(c.Request.Context(), claims.Subject, entries)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    entries,
		"meta":    gin.H{"month": int(now.Month()), "year": now.Year()},
	})
}

// ---------- Faculty assignment ----------

// MySubject resolves the one subject registered to the calling faculty.
func (h *Handler) MySubject(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	subj, err := h.dir.SubjectForFaculty(c.Request.Context(), claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if subj == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no subject assigned"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": subj})
}

type reassignRequest struct {
	FacultyID string `json:"faculty_id" binding:"required"`
}

// ReassignFaculty moves a subject's registered assignment in one
// transaction.
func (h *Handler) ReassignFaculty(c *gin.Context) {
	var req reassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := h.dir.ReassignFaculty(c.Request.Context(), c.Param("subjectID"), req.FacultyID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ---------- Helpers ----------

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, attendance.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, attendance.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error(), "retryable": true})
	default:
		log.Printf("store error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "store unavailable"})
	}
}

// parseDate accepts RFC3339 timestamps or bare YYYY-MM-DD dates.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	var n int
	for _, r := range raw {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}
