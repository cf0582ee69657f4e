package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drivetheory/theory-hub/internal/application/command"
	"github.com/drivetheory/theory-hub/internal/application/query"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
	"github.com/drivetheory/theory-hub/pkg/logger"
)

// Wire error bodies.
const (
	MsgInvalidSubmission = "Invalid submission data"
	MsgSubmitFailed      = "Failed to submit practice session"
	MsgInvalidStudent    = "Invalid student id"
	MsgProgressFailed    = "Failed to load progress"
)

// PracticeSubmitter runs the submission pipeline.
type PracticeSubmitter interface {
	Handle(ctx context.Context, cmd command.SubmitPracticeCommand) (*command.SubmitPracticeResult, error)
}

// ProgressReader serves the progress read model.
type ProgressReader interface {
	Handle(ctx context.Context, q query.GetStudentProgressQuery) (*query.GetStudentProgressResult, error)
}

// PracticeHandler exposes the theory practice endpoints.
type PracticeHandler struct {
	submitter PracticeSubmitter
	progress  ProgressReader
	log       *logger.Logger
}

// NewPracticeHandler creates the handler.
func NewPracticeHandler(submitter PracticeSubmitter, progress ProgressReader, log *logger.Logger) *PracticeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PracticeHandler{
		submitter: submitter,
		progress:  progress,
		log:       log.With(logger.Component("practice_http")),
	}
}

// Submit handles POST /theory/submit.
func (h *PracticeHandler) Submit(c *gin.Context) {
	log := RequestLogger(c, h.log)

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug("submit body rejected", logger.Err(err))
		c.JSON(http.StatusBadRequest, Envelope{Error: MsgInvalidSubmission})
		return
	}
	sub, err := req.Submission()
	if err != nil {
		log.Debug("submit body rejected", logger.Err(err))
		c.JSON(http.StatusBadRequest, Envelope{Error: MsgInvalidSubmission})
		return
	}

	res, err := h.submitter.Handle(c.Request.Context(), command.SubmitPracticeCommand{
		Submission:    sub,
		CorrelationID: RequestID(c),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, Envelope{Success: true, Data: NewSubmitResponse(res)})
	case errors.Is(err, shared.ErrInvalidSubmission):
		log.Debug("submission invalid", logger.Err(err))
		c.JSON(http.StatusBadRequest, Envelope{Error: MsgInvalidSubmission})
	default:
		log.Error("submission failed",
			logger.StudentID(sub.StudentID),
			logger.Bool("retryable", shared.IsRetryable(err)),
			logger.Err(err),
		)
		c.JSON(http.StatusInternalServerError, Envelope{Error: MsgSubmitFailed})
	}
}

// Progress handles GET /theory/progress/:userId.
func (h *PracticeHandler) Progress(c *gin.Context) {
	log := RequestLogger(c, h.log)

	res, err := h.progress.Handle(c.Request.Context(), query.GetStudentProgressQuery{
		StudentID:      c.Param("userId"),
		RecentSessions: intQuery(c, "recent", 0),
	})
	switch {
	case err == nil:
		c.Header("X-Cache", cacheHeader(res.FromCache))
		c.JSON(http.StatusOK, Envelope{Success: true, Data: res.Progress})
	case shared.IsValidation(err):
		c.JSON(http.StatusBadRequest, Envelope{Error: MsgInvalidStudent})
	default:
		log.Error("progress query failed", logger.String("user_id", c.Param("userId")), logger.Err(err))
		c.JSON(http.StatusInternalServerError, Envelope{Error: MsgProgressFailed})
	}
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}
