package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stockroomhq/inventory-gateway/internal/apierr"
	"github.com/stockroomhq/inventory-gateway/internal/middleware"
	"github.com/stockroomhq/inventory-gateway/internal/models"
	"github.com/stockroomhq/inventory-gateway/internal/registry"
)

// Schemas registered on first use per tenant. Registration happens once
// per (tenant, name); afterwards the cached model is returned.
var (
	productSchema = registry.Schema{
		Table:     "products",
		Prototype: &models.Product{},
	}
	stockLevelSchema = registry.Schema{
		Table:     "stock_levels",
		Prototype: &models.StockLevel{},
	}
)

// Thin data-access handlers over the tenant's own database. All routing,
// auth and quota decisions happened earlier in the chain.
type InventoryHandler struct {
	registry *registry.Registry
}

func NewInventoryHandler(reg *registry.Registry) *InventoryHandler {
	return &InventoryHandler{registry: reg}
}

func (h *InventoryHandler) ListProducts(c *gin.Context) {
	tenant, ok := middleware.TenantFromContext(c)
	if !ok {
		apierr.Abort(c, apierr.TokenMissing())
		return
	}

	ctx := c.Request.Context()
	model, release, err := h.registry.AcquireModel(ctx, tenant.DatabaseName, "Product", productSchema)
	if err != nil {
		apierr.Abort(c, apierr.TenantConnectionFailed())
		return
	}
	defer release()

	var products []models.Product
	if err := model.Session(ctx).Limit(200).Order("created_at DESC").Find(&products).Error; err != nil {
		apierr.Abort(c, apierr.Internal())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": products})
}

func (h *InventoryHandler) CreateProduct(c *gin.Context) {
	tenant, ok := middleware.TenantFromContext(c)
	if !ok {
		apierr.Abort(c, apierr.TokenMissing())
		return
	}

	var req struct {
		SKU         string  `json:"sku" binding:"required"`
		Name        string  `json:"name" binding:"required"`
		Description string  `json:"description"`
		Category    string  `json:"category"`
		UnitPrice   float64 `json:"unit_price"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	model, release, err := h.registry.AcquireModel(ctx, tenant.DatabaseName, "Product", productSchema)
	if err != nil {
		apierr.Abort(c, apierr.TenantConnectionFailed())
		return
	}
	defer release()

	product := models.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		UnitPrice:   req.UnitPrice,
	}

	if err := model.Session(ctx).Create(&product).Error; err != nil {
		apierr.Abort(c, apierr.Internal())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": product})
}

func (h *InventoryHandler) ListStockLevels(c *gin.Context) {
	tenant, ok := middleware.TenantFromContext(c)
	if !ok {
		apierr.Abort(c, apierr.TokenMissing())
		return
	}

	ctx := c.Request.Context()
	model, release, err := h.registry.AcquireModel(ctx, tenant.DatabaseName, "StockLevel", stockLevelSchema)
	if err != nil {
		apierr.Abort(c, apierr.TenantConnectionFailed())
		return
	}
	defer release()

	query := model.Session(ctx)
	if warehouse := c.Query("warehouse"); warehouse != "" {
		query = query.Where("warehouse_code = ?", warehouse)
	}

	var levels []models.StockLevel
	if err := query.Limit(500).Find(&levels).Error; err != nil {
		apierr.Abort(c, apierr.Internal())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": levels})
}
