// handlers.go - HTTP endpoints for receipt processing

package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/domusplus/receipt-engine/internal/common"
	"github.com/domusplus/receipt-engine/internal/recon"
	"github.com/domusplus/receipt-engine/internal/segmenter"
	"github.com/domusplus/receipt-engine/internal/storage"
	"github.com/domusplus/receipt-engine/internal/vision"
	"github.com/gin-gonic/gin"
)

const (
	maxUploadBytes = 15 << 20
	maxImagesPer   = 4
)

// Processor runs the receipt pipeline. Satisfied by recon.Pipeline; the
// indirection keeps handler tests off the network.
type Processor interface {
	Process(ctx context.Context, rc *common.RequestContext, images [][]byte, mode common.Mode) (*recon.Result, error)
}

// Handler holds the wired dependencies for all routes. Store may be nil
// when persistence is disabled.
type Handler struct {
	processor Processor
	store     *storage.Store
	cache     *storage.ResultCache
}

func NewHandler(processor Processor, store *storage.Store, cache *storage.ResultCache) *Handler {
	return &Handler{processor: processor, store: store, cache: cache}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.POST("/api/receipts/process", h.ProcessReceipt)
	r.GET("/api/receipts/:id", h.GetReceipt)
	r.GET("/api/receipts", h.ListReceipts)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ProcessReceipt accepts one or more photos of a single receipt in
// top-to-bottom order and returns the reconciled result.
func (h *Handler) ProcessReceipt(c *gin.Context) {
	userID := c.PostForm("target_user_id")
	if userID == "" {
		userID = "anonymous"
	}

	mode, err := common.ParseMode(c.PostForm("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	images, err := h.readImages(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rc := common.NewRequestContext(userID)

	if h.cache != nil {
		if cached, ok := h.cache.Get(storage.CacheKey(images, string(mode))); ok {
			rc.LogInfo("Cache hit, returning stored result")
			c.JSON(http.StatusOK, h.response(rc, cached, true))
			return
		}
	}

	result, err := h.processor.Process(c.Request.Context(), rc, images, mode)
	if err != nil {
		h.writeProcessError(c, rc, err)
		return
	}

	if h.cache != nil {
		h.cache.Put(storage.CacheKey(images, string(mode)), result)
	}
	if h.store != nil {
		doc := storage.NewReceiptDocument(rc.RequestID, userID, result)
		if err := h.store.SaveReceipt(c.Request.Context(), doc); err != nil {
			rc.LogError("Failed to persist receipt: %v", err)
		}
	}

	c.JSON(http.StatusOK, h.response(rc, result, false))
}

func (h *Handler) readImages(c *gin.Context) ([][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.New("multipart form with at least one 'images' file is required")
	}
	files := form.File["images"]
	if len(files) == 0 {
		return nil, errors.New("no 'images' files in request")
	}
	if len(files) > maxImagesPer {
		return nil, errors.New("too many images (max 4 per receipt)")
	}

	images := make([][]byte, 0, len(files))
	var total int64
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, errors.New("failed to read uploaded file")
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		f.Close()
		if err != nil {
			return nil, errors.New("failed to read uploaded file")
		}
		total += int64(len(data))
		if total > maxUploadBytes {
			return nil, errors.New("upload too large (max 15MB total)")
		}
		if _, err := segmenter.DetectMIME(data); err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

func (h *Handler) writeProcessError(c *gin.Context, rc *common.RequestContext, err error) {
	rc.LogError("Processing failed: %v", err)

	if errors.Is(err, recon.ErrNoSignal) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "No readable content found in the image",
			"suggestion": "Take a clearer, well-lit photo of the full receipt and try again.",
			"request_id": rc.RequestID,
		})
		return
	}

	var ve *vision.Error
	if errors.As(err, &ve) {
		status := http.StatusBadGateway
		if !ve.Hard() && ve.Category == "timeout" {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{
			"error":      "Vision processing failed",
			"category":   ve.Category,
			"suggestion": ve.Hint,
			"request_id": rc.RequestID,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "Receipt processing failed",
		"request_id": rc.RequestID,
	})
}

func (h *Handler) response(rc *common.RequestContext, result *recon.Result, cached bool) gin.H {
	return gin.H{
		"request_id": rc.RequestID,
		"cached":     cached,
		"result":     result,
		"summary":    rc.GetSummary(),
	}
}

// GetReceipt returns a stored receipt by request ID.
func (h *Handler) GetReceipt(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence is disabled"})
		return
	}

	doc, err := h.store.GetReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load receipt"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ListReceipts returns a user's recent receipts.
func (h *Handler) ListReceipts(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence is disabled"})
		return
	}

	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	docs, err := h.store.ListReceipts(c.Request.Context(), userID, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list receipts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": docs})
}
