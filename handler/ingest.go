package handler

import (
	"net/http"

	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/MUKTHARS/clmprod-sub000/service"
	"github.com/gin-gonic/gin"
)

// IngestHandler receives signed records from the extraction pipeline
type IngestHandler struct {
	ingest *service.IngestService
}

func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// HandleIngest verifies the checksum and stores the record as a draft
func (h *IngestHandler) HandleIngest(c *gin.Context) {
	var req service.IngestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if !h.ingest.VerifyChecksum(req.Checksum, req.Content) {
		logger.Warn(c.Request.Context(), "ingest checksum mismatch", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid checksum"})
		return
	}

	res, err := h.ingest.Ingest(c.Request.Context(), []byte(req.Content))
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"contract": newContractView(res.Contract),
		"shape":    res.Shape,
	}
	if res.ArchivedAs != "" {
		body["archived_as"] = res.ArchivedAs
	}
	c.JSON(http.StatusCreated, body)
}
