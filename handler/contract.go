package handler

import (
	"net/http"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/service"
	"github.com/gin-gonic/gin"
)

type ContractHandler struct {
	contracts *service.ContractStore
}

func NewContractHandler(contracts *service.ContractStore) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// ContractView is a contract as rendered to clients
type ContractView struct {
	*model.Contract
	DisplayReference string `json:"display_reference"`
}

func newContractView(c *model.Contract) ContractView {
	return ContractView{Contract: c, DisplayReference: c.DisplayReference()}
}

// List returns contracts, optionally filtered by ?status=
func (h *ContractHandler) List(c *gin.Context) {
	var opts service.ListOptions
	if raw := c.Query("status"); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status " + raw, "kind": string(service.KindValidation)})
			return
		}
		opts.Status = status
	}

	contracts, err := h.contracts.List(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}

	// list view omits history and extracted detail
	result := make([]gin.H, len(contracts))
	for i := range contracts {
		contract := &contracts[i]
		result[i] = gin.H{
			"id":                contract.ID,
			"display_reference": contract.DisplayReference(),
			"status":            contract.Status,
			"grant_name":        contract.GrantName,
			"total_amount":      contract.TotalAmount,
			"currency":          contract.Currency,
			"version":           contract.Version,
			"created_at":        contract.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":        contract.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// Get returns a single contract with its history
func (h *ContractHandler) Get(c *gin.Context) {
	contract, err := h.contracts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newContractView(contract))
}

// History returns the audit trail of a contract
func (h *ContractHandler) History(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.contracts.Head(ctx, nil, id); err != nil {
		respondError(c, err)
		return
	}
	history, err := h.contracts.History(ctx, nil, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []model.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"contract_id": id, "history": history})
}

// Normalize previews the canonical form of a raw record without storing it
func (h *ContractHandler) Normalize(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body required", "kind": string(service.KindValidation)})
		return
	}
	rec, err := service.ParseRaw(data)
	if err != nil {
		respondError(c, err)
		return
	}
	contract, err := rec.Normalize()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shape":    rec.Shape.String(),
		"contract": newContractView(contract),
	})
}
