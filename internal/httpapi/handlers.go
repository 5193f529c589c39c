package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"audit-platform/internal/audit"
	"audit-platform/internal/auth"
	"audit-platform/internal/users"
	"audit-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth  *auth.Manager
	Audit *audit.Service
	Users *users.Service

	// DB backs the readiness check only.
	DB *sql.DB
}

// Healthz reports liveness; with a DB configured it also pings it.
func (h Handlers) Healthz(c *gin.Context) {
	if h.DB != nil {
		if err := utils.HealthCheck(c.Request.Context(), h.DB, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Auth ---

type tokenRequest struct {
	ActorID string `json:"actor_id"`
}

// IssueToken mints an access token for a known actor.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate
// credentials before issuing tokens.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ActorID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "actor_id required"})
		return
	}
	tok, err := h.Auth.IssueAccessToken(time.Now(), req.ActorID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Audit ---

type recordRequest struct {
	ActorID     string          `json:"actor_id"`
	SubjectKind string          `json:"subject_kind"`
	SubjectID   string          `json:"subject_id"`
	Action      audit.Action    `json:"action"`
	Payload     json.RawMessage `json:"payload"`
	Transport   audit.Transport `json:"transport,omitempty"`
}

type linkedRecordRequest struct {
	recordRequest
	ParentID string `json:"parent_id"`
}

func (r recordRequest) entry(c *gin.Context) audit.Entry {
	actorID := r.ActorID
	if actorID == "" {
		// Fall back to the authenticated principal.
		actorID, _ = auth.ActorID(c.Request.Context())
	}
	return audit.Entry{
		ActorID:     actorID,
		SubjectKind: r.SubjectKind,
		SubjectID:   r.SubjectID,
		Action:      r.Action,
		Payload:     r.Payload,
		Transport:   r.Transport,
	}
}

func (h Handlers) CreateAuditRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rec, err := h.Audit.Record(c.Request.Context(), req.entry(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h Handlers) CreateLinkedAuditRecord(c *gin.Context) {
	var req linkedRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rec, err := h.Audit.RecordLinked(c.Request.Context(), req.entry(c), req.ParentID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetTrail returns the subject's chronological trail.
// An empty trail is a 200 with an empty list, not a 404: a subject with no
// history is a legitimate query result.
func (h Handlers) GetTrail(c *gin.Context) {
	subjectID := c.Param("subject_id")
	entries, err := h.Audit.TrailFor(c.Request.Context(), subjectID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []audit.TrailEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"trail": entries})
}

func (h Handlers) GetChildren(c *gin.Context) {
	parentID := c.Param("parent_id")
	records, err := h.Audit.ChildrenOf(c.Request.Context(), parentID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"children": records})
}

// --- Users ---

func (h Handlers) CreateUser(c *gin.Context) {
	actorID, err := auth.ActorID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "actor_id required"})
		return
	}
	var req users.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	u, err := h.Users.Create(c.Request.Context(), actorID, transportOf(c), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h Handlers) GetUser(c *gin.Context) {
	u, err := h.Users.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h Handlers) UpdateUser(c *gin.Context) {
	actorID, err := auth.ActorID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "actor_id required"})
		return
	}
	var req users.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	u, err := h.Users.Update(c.Request.Context(), actorID, transportOf(c), c.Param("user_id"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h Handlers) DeleteUser(c *gin.Context) {
	actorID, err := auth.ActorID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "actor_id required"})
		return
	}
	if err := h.Users.Delete(c.Request.Context(), actorID, transportOf(c), c.Param("user_id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bulkUpdateRequest struct {
	UserIDs []string         `json:"user_ids"`
	Status  users.UserStatus `json:"status"`
}

func (h Handlers) BulkUpdateUsers(c *gin.Context) {
	actorID, err := auth.ActorID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "actor_id required"})
		return
	}
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Users.BulkUpdateStatus(c.Request.Context(), actorID, transportOf(c), req.UserIDs, req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// transportOf maps the HTTP method onto the audit transport tag.
func transportOf(c *gin.Context) audit.Transport {
	t := audit.Transport(c.Request.Method)
	if !t.Valid() {
		return ""
	}
	return t
}

// abortWithError maps service errors onto response codes:
// 400 for caller-input failures, 404 for true entity misses,
// 500 for storage failures and everything unexpected.
func abortWithError(c *gin.Context, err error) {
	switch {
	case audit.IsValidation(err), errors.Is(err, users.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
