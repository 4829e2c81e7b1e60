package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carelane/docqueue/internal/models"
	"github.com/carelane/docqueue/internal/queue"
	"github.com/carelane/docqueue/pkg/logger"
)

type QueueHandler struct {
	service *queue.Service
	logger  logger.Logger
}

// ErrorResponse is the error envelope for every endpoint.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

type registerDocumentRequest struct {
	Filename   string `json:"filename" binding:"required"`
	StorageKey string `json:"storageKey" binding:"required"`
}

type enqueueJobRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	JobType    string `json:"jobType" binding:"required"`
}

type transitionJobRequest struct {
	Status       string `json:"status" binding:"required"`
	ErrorMessage string `json:"errorMessage"`
}

func NewQueueHandler(service *queue.Service, logger logger.Logger) *QueueHandler {
	return &QueueHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterDocument records an uploaded document and enqueues its parse job.
func (h *QueueHandler) RegisterDocument(c *gin.Context) {
	var req registerDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	doc, job, err := h.service.RegisterDocument(c.Request.Context(), req.Filename, req.StorageKey)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to register document", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document": doc,
		"job":      job,
	})
}

// EnqueueJob inserts a pending job for a document.
func (h *QueueHandler) EnqueueJob(c *gin.Context) {
	var req enqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	documentID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid document id", err)
		return
	}
	jobType, err := models.ParseJobType(req.JobType)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid job type", err)
		return
	}

	job, err := h.service.EnqueueJob(c.Request.Context(), documentID, jobType)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to enqueue job", err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// TransitionJob applies a worker-reported status change.
func (h *QueueHandler) TransitionJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid job id", err)
		return
	}

	var req transitionJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status, err := models.ParseJobStatus(req.Status)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid job status", err)
		return
	}

	if err := h.service.TransitionJob(c.Request.Context(), jobID, status, req.ErrorMessage); err != nil {
		h.handleError(c, statusFor(err), "Failed to transition job", err)
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to load job", err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetDocument returns a document by id.
func (h *QueueHandler) GetDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("documentId"))
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid document id", err)
		return
	}

	doc, err := h.service.GetDocument(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get document", err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// GetJob returns a job by id.
func (h *QueueHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid job id", err)
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// QueueHealth returns the advisory health snapshot.
func (h *QueueHandler) QueueHealth(c *gin.Context) {
	health, err := h.service.QueueHealth(c.Request.Context())
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to get queue health", err)
		return
	}

	c.JSON(http.StatusOK, health)
}

// RunReaper triggers a manual reaper sweep.
func (h *QueueHandler) RunReaper(c *gin.Context) {
	reaped, err := h.service.RunReaper(c.Request.Context())
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Reaper sweep failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reaped": reaped})
}

// RunRetrySweep triggers a manual retry sweep.
func (h *QueueHandler) RunRetrySweep(c *gin.Context) {
	revived, err := h.service.RunRetrySweep(c.Request.Context())
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Retry sweep failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"revived": revived})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrDocumentNotFound), errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrDuplicateActiveJob), errors.Is(err, queue.ErrTerminalJob),
		errors.Is(err, queue.ErrTerminalDocument):
		return http.StatusConflict
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *QueueHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(status, response)
}
