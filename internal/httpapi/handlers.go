package httpapi

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/authenticator"
	"geoattend/internal/geo"
	"geoattend/internal/roster"
)

func (h *handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	names := make([]string, 0, len(h.Health))
	for name := range h.Health {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ok := h.Health[name](c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (h *handler) login(c *gin.Context) {
	var req struct {
		RollNumber string `json:"roll_number" binding:"required"`
		Password   string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := h.Roster.Authenticate(req.RollNumber, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid roll number or password"})
		return
	}

	token, err := auth.Issue(student.RollNumber, student.Name, h.JWTIssuer, h.JWTSigningKey, h.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token.AccessToken,
		"expires_at":   token.ExpiresAt.Unix(),
		"student":      gin.H{"roll_number": student.RollNumber, "name": student.Name},
	})
}

// student resolves the logged-in student, writing the error response itself.
func (h *handler) student(c *gin.Context) (roster.Student, bool) {
	s, err := h.Roster.Student(subject(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown student"})
		return roster.Student{}, false
	}
	return s, true
}

func (h *handler) dashboard(c *gin.Context) {
	student, ok := h.student(c)
	if !ok {
		return
	}
	views, err := h.Attendance.Dashboard(c.Request.Context(), student.RollNumber)
	if err != nil {
		log.Printf("dashboard for %s failed: %v", student.RollNumber, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dashboard unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": gin.H{"roll_number": student.RollNumber, "name": student.Name}, "classes": views})
}

type positionRequest struct {
	Latitude  *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" binding:"omitempty,longitude"`
}

func (h *handler) takeAttendance(c *gin.Context) {
	student, ok := h.student(c)
	if !ok {
		return
	}

	var req positionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude must be sent together"})
		return
	}

	sess := attendance.Context{Student: student}
	if req.Latitude != nil {
		sess.Location = &geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	} else if h.Locator != nil {
		if p, err := h.Locator.CurrentPosition(c.Request.Context()); err == nil {
			sess.Location = &p
		}
	}

	outcome, err := h.Attendance.Run(c.Request.Context(), sess, c.Param("classID"))
	switch {
	case err == nil:
	case errors.Is(err, roster.ErrUnknownClass):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, attendance.ErrNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	default:
		log.Printf("attendance for %s/%s failed: %v", student.RollNumber, c.Param("classID"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "attendance could not be recorded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (h *handler) listAttendance(c *gin.Context) {
	outcomes, err := h.Ledger.List(c.Request.Context(), subject(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if outcomes == nil {
		outcomes = []attendance.Outcome{}
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

func (h *handler) reportOutcomes(c *gin.Context) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	outcomes, err := h.reporter.ListAll(c.Request.Context(), c.Query("class_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if outcomes == nil {
		outcomes = []attendance.Outcome{}
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

func (h *handler) pendingCeremonies(c *gin.Context) {
	pending := h.Bridge.Pending(subject(c))
	if pending == nil {
		pending = []authenticator.Ceremony{}
	}
	c.JSON(http.StatusOK, gin.H{"ceremonies": pending})
}

func (h *handler) resolveCeremony(c *gin.Context) {
	id := c.Param("id")
	var resp authenticator.Response
	if err := c.ShouldBindJSON(&resp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner, ok := h.Bridge.Owner(id)
	if !ok {
		c.JSON(http.StatusGone, gin.H{"error": authenticator.ErrCeremonyGone.Error()})
		return
	}
	if owner != subject(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "ceremony belongs to another student"})
		return
	}

	if err := h.Bridge.Resolve(id, resp); err != nil {
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
