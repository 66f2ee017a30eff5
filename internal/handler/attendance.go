package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"faceattend/internal/attendance"
	"faceattend/internal/imaging"
	"faceattend/internal/verification"
)

type markRequest struct {
	Image string `json:"image" binding:"required"`
}

// MarkAttendance verifies the captured face of the calling student and
// records today's attendance on a match.
func (h *Handler) MarkAttendance(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	if !id.Enrolled() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "face not registered"})
		return
	}

	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no image provided"})
		return
	}
	captured, err := imaging.DecodeDataURI(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid image data"})
		return
	}

	ctx := c.Request.Context()
	log := logger(c).WithField("identity_id", id.ID)

	decision, err := h.engine.VerifyIdentity(ctx, id, captured)
	if errors.Is(err, imaging.ErrUnsupportedFormat) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid image data"})
		return
	}
	if err != nil {
		h.internalError(c, "verify face", err)
		return
	}

	switch decision.Outcome {
	case verification.NotEnrolled:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "face not registered"})
		return
	case verification.NoMatch:
		log.WithField("distance", decision.Distance).Info("face not recognized")
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "face not recognized"})
		return
	case verification.Match:
	}

	result, rec, err := h.ledger.MarkPresent(ctx, id.ID, h.now())
	if err != nil {
		h.internalError(c, "mark attendance", err)
		return
	}
	log.WithFields(logrus.Fields{"day": rec.Day, "result": result.String()}).Info("attendance marked")

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"already_marked": result == attendance.AlreadyMarked,
		"date":           rec.Day,
		"time":           hourMinute(rec.MarkedTime),
	})
}

// MyAttendance returns the caller's monthly report.
func (h *Handler) MyAttendance(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	h.writeReport(c, id.ID)
}
