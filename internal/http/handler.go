package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"permit-enforcement/internal/domain/permit"
	"permit-enforcement/internal/ocr"
	"permit-enforcement/internal/service"
)

const (
	imageSourceHTTP     = "http"
	permitRequestFailed = "An error occurred while processing the permit request."
)

type Handler struct {
	detectionService *service.DetectionService
	permitService    *service.PermitService
	alertStream      http.Handler
	maxImageBytes    int64
	log              zerolog.Logger
}

// NewHandler wires the HTTP surface. alertStream may be nil when the websocket
// alert channel is disabled.
func NewHandler(
	detectionService *service.DetectionService,
	permitService *service.PermitService,
	alertStream http.Handler,
	maxImageBytes int64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		detectionService: detectionService,
		permitService:    permitService,
		alertStream:      alertStream,
		maxImageBytes:    maxImageBytes,
		log:              log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/request-permit", h.requestPermit)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/images", h.uploadImage)
		protected.GET("/detections", h.listDetections)
		protected.GET("/permits", h.listPermits)
		if h.alertStream != nil {
			protected.GET("/alerts/ws", gin.WrapH(h.alertStream))
		}
	}
}

type permitRequest struct {
	LicensePlate   string `json:"license_plate"`
	ExpirationDate string `json:"expiration_date"`
}

func (h *Handler) requestPermit(c *gin.Context) {
	var req permitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error().Err(err).Msg("unreadable permit request body")
		c.String(http.StatusInternalServerError, permitRequestFailed)
		return
	}

	p, err := h.permitService.Submit(c.Request.Context(), req.LicensePlate, req.ExpirationDate)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			c.String(http.StatusBadRequest, verr.Reason)
		case errors.Is(err, permit.ErrConflict):
			c.String(http.StatusBadRequest, "This license plate already has an active permit.")
		default:
			h.log.Error().Err(err).Msg("failed to process permit request")
			c.String(http.StatusInternalServerError, permitRequestFailed)
		}
		return
	}

	c.String(http.StatusOK, fmt.Sprintf(
		"Permit request for license plate '%s' has been successfully submitted. Permit is valid until %s.",
		p.Plate, req.ExpirationDate))
}

func (h *Handler) uploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes)

	data, name, err := readImage(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse("image exceeds size limit"))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	img := permit.Image{
		Name:      name,
		Size:      int64(len(data)),
		Source:    imageSourceHTTP,
		Data:      data,
		ArrivedAt: time.Now(),
	}

	result, err := h.detectionService.ProcessImage(c.Request.Context(), img)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		case errors.Is(err, ocr.ErrExtraction):
			c.JSON(http.StatusBadGateway, errorResponse("text extraction failed"))
		case errors.Is(err, service.ErrRegistryUnavailable):
			c.JSON(http.StatusServiceUnavailable, errorResponse("permit registry unavailable"))
		default:
			h.handleError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, successResponse(toProcessResponse(result)))
}

// readImage accepts either a multipart upload in the "image" field or a raw body.
func readImage(c *gin.Context) ([]byte, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, "", fmt.Errorf("image file is required: %w", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		return data, fh.Filename, nil
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("image body is empty")
	}
	name := c.Query("name")
	if name == "" {
		name = c.GetHeader("X-Image-Name")
	}
	return data, name, nil
}

type candidateResponse struct {
	Plate          string                `json:"plate"`
	Classification permit.Classification `json:"classification,omitempty"`
	Alerted        bool                  `json:"alerted"`
	Errors         []string              `json:"errors,omitempty"`
}

type processResponse struct {
	ImageID    uuid.UUID           `json:"image_id"`
	ImageName  string              `json:"image_name,omitempty"`
	ArrivedAt  time.Time           `json:"arrived_at"`
	Violations int                 `json:"violations"`
	Duplicate  bool                `json:"duplicate,omitempty"`
	Candidates []candidateResponse `json:"candidates"`
}

func toProcessResponse(r *permit.ProcessResult) processResponse {
	resp := processResponse{
		ImageID:    r.ImageID,
		ImageName:  r.ImageName,
		ArrivedAt:  r.ArrivedAt,
		Violations: r.Violations,
		Duplicate:  r.Duplicate,
		Candidates: make([]candidateResponse, 0, len(r.Candidates)),
	}
	for _, c := range r.Candidates {
		cr := candidateResponse{Plate: c.Plate, Alerted: c.Alerted}
		if c.Classified {
			cr.Classification = c.Classification
		}
		for _, err := range []error{c.RecordErr, c.LookupErr, c.DispatchErr} {
			if err != nil {
				cr.Errors = append(cr.Errors, err.Error())
			}
		}
		resp.Candidates = append(resp.Candidates, cr)
	}
	return resp
}

func (h *Handler) listDetections(c *gin.Context) {
	var plateQuery *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	detections, err := h.detectionService.FindDetections(c.Request.Context(), plateQuery, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(detections))
}

func (h *Handler) listPermits(c *gin.Context) {
	plateQuery := strings.TrimSpace(c.Query("plate"))
	if plateQuery == "" {
		c.JSON(http.StatusBadRequest, errorResponse("plate parameter is required"))
		return
	}

	permits, err := h.permitService.FindPermits(c.Request.Context(), plateQuery)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(permits))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
