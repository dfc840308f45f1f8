package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"contentplanner/internal/session"
)

type ViewHandler struct {
	now func() time.Time
}

func NewViewHandler() *ViewHandler {
	return &ViewHandler{now: time.Now}
}

func (h *ViewHandler) Dashboard(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.BuildDashboard(s.Mirror.Tasks(), s.Mirror.Posts(), h.now()))
}

// location reads the optional tz query parameter (IANA name, default UTC).
func location(c *gin.Context) (*time.Location, bool) {
	name := c.Query("tz")
	if name == "" {
		return time.UTC, true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown time zone"})
		return nil, false
	}
	return loc, true
}

// CalendarMonth handles GET /calendar?month=YYYY-MM&tz=
func (h *ViewHandler) CalendarMonth(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	loc, ok := location(c)
	if !ok {
		return
	}

	month := h.now().In(loc)
	if raw := c.Query("month"); raw != "" {
		t, err := time.ParseInLocation("2006-01", raw, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
			return
		}
		month = t
	}

	c.JSON(http.StatusOK, session.BuildCalendarMonth(s.Mirror.Tasks(), s.Mirror.Posts(), month.Year(), month.Month(), loc))
}

// CalendarDay handles GET /calendar/day?date=YYYY-MM-DD&tz=
func (h *ViewHandler) CalendarDay(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	loc, ok := location(c)
	if !ok {
		return
	}

	day, err := time.ParseInLocation("2006-01-02", c.Query("date"), loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	c.JSON(http.StatusOK, session.BuildCalendarDay(s.Mirror.Tasks(), s.Mirror.Posts(), day, loc))
}
