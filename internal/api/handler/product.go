package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/olegk/qrsync/internal/api/middleware"
	"github.com/olegk/qrsync/internal/repository"
	"github.com/olegk/qrsync/internal/service"
)

// ProductHandler exposes product listing, per-product archives and the
// public barcode redirect.
type ProductHandler struct {
	products    *repository.ProductRepository
	archive     *service.ArchiveService
	redirectURL string
}

// NewProductHandler creates a new product handler.
// Parameters:
//   - products: product repository.
//   - archive: archive service for per-product downloads.
//   - redirectURL: fallback target for unresolvable barcode redirects.
// Returns:
//   - *ProductHandler: initialized handler.
func NewProductHandler(products *repository.ProductRepository, archive *service.ArchiveService, redirectURL string) *ProductHandler {
	return &ProductHandler{products: products, archive: archive, redirectURL: redirectURL}
}

// ListProducts returns a paginated product listing.
// GET /api/v1/products?page=1&page_size=20&name=&group=&visible=true
func (h *ProductHandler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filter := repository.ListFilter{
		Name:        c.Query("name"),
		Group:       c.Query("group"),
		VisibleOnly: c.Query("visible") == "true",
	}

	ctx := c.Request.Context()
	total, err := h.products.Count(ctx, filter)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to count products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
		return
	}

	products, err := h.products.List(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products":  products,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetProduct returns one product by id.
// GET /api/v1/products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// ProductArchive streams a zip of one product's artifacts.
// GET /api/v1/products/:id/archive
func (h *ProductHandler) ProductArchive(c *gin.Context) {
	id := c.Param("id")

	// Resolve the name first so the headers carry a useful filename.
	product, err := h.products.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get product"})
		return
	}

	filename := "qrcodes.zip"
	if product.Name != nil && *product.Name != "" {
		filename = *product.Name + ".zip"
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	err = h.archive.BuildForProduct(c.Request.Context(), id, c.Writer)
	if err == nil {
		return
	}
	if errors.Is(err, service.ErrEmptyArchive) {
		c.Header("Content-Type", "application/json")
		c.Header("Content-Disposition", "")
		c.JSON(http.StatusNotFound, gin.H{"error": "no qr codes found for product"})
		return
	}
	middleware.GetLogger(c).WithError(err).Error("Failed to build product archive")
	c.Abort()
}

// RedirectByBarcode resolves a scanned code to the product link. The path
// value is the GS1 element string form of the barcode, one padding digit
// longer than the stored value.
// GET /r/:barcode
func (h *ProductHandler) RedirectByBarcode(c *gin.Context) {
	barcode := c.Param("barcode")
	lookup := barcode
	if len(lookup) > 1 {
		lookup = lookup[1:]
	}

	product, err := h.products.GetByBarcode(c.Request.Context(), lookup)
	if err != nil && errors.Is(err, repository.ErrNotFound) {
		product, err = h.products.GetByBarcode(c.Request.Context(), barcode)
	}
	if err == nil && product.SourceURL != nil && *product.SourceURL != "" {
		c.Redirect(http.StatusFound, *product.SourceURL)
		return
	}

	if h.redirectURL != "" {
		c.Redirect(http.StatusFound, h.redirectURL)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown barcode"})
}
