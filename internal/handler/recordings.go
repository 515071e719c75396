package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/code-100-precent/EchoDesk/internal/models"
	"github.com/code-100-precent/EchoDesk/pkg/recording"
	"github.com/code-100-precent/EchoDesk/pkg/response"
	stores "github.com/code-100-precent/EchoDesk/pkg/storage"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// OpenRecording resolves the recording for a call-log record. The first
// call typically answers with a loading state; the client polls the same
// endpoint until a terminal state is reached. Selecting a different record
// supersedes any fetch still in flight.
func (h *Handlers) OpenRecording(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.lookupRecord(id)
	if err != nil {
		response.Fail(c, "通话记录不存在", id)
		return
	}

	res := h.resolver.Resolve(rec)
	if res.State == recording.StateLoading {
		if known, ok := h.resolver.Lookup(id); ok {
			res = known
		}
	}

	body := gin.H{
		"callLogId": id,
		"state":     res.StateName,
		"url":       res.URL,
	}
	if res.SampleRate > 0 {
		body["sampleRate"] = res.SampleRate
		body["durationSeconds"] = res.Duration.Seconds()
	}

	switch res.State {
	case recording.StateFailed:
		// Retryable from the client's point of view: a later call of
		// this endpoint starts a fresh resolution.
		body["error"] = res.Err.Error()
		response.Success(c, "recording fetch failed", body)
	case recording.StateUnavailable:
		response.Success(c, "no recording for this call", body)
	default:
		response.Success(c, "recording", body)
	}
}

// lookupRecord prefers the reconciler's freshly fetched copy and falls
// back to the local mirror.
func (h *Handlers) lookupRecord(id string) (*models.CallLogRecord, error) {
	if rec := h.ActiveReconciler(); rec != nil {
		for _, r := range rec.Records() {
			if r.ID == id {
				record := r
				return &record, nil
			}
		}
	}
	record, err := models.GetCallLogByID(h.db, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

// ServeRecording streams a locally stored recording payload.
func (h *Handlers) ServeRecording(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	reader, size, err := h.store.Read(key)
	if err != nil {
		if errors.Is(err, stores.ErrInvalidPath) {
			response.FailWithStatus(c, http.StatusBadRequest, "invalid recording path", nil)
			return
		}
		response.FailWithStatus(c, http.StatusNotFound, "recording not found", nil)
		return
	}
	defer reader.Close()

	contentType := "audio/wav"
	if strings.HasSuffix(key, ".mp3") {
		contentType = "audio/mpeg"
	}
	c.DataFromReader(http.StatusOK, size, contentType, reader, nil)
}
