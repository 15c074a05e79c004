package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/catalog"
)

// RegisterProductRoutes registers the read-only catalog routes.
func (h *Handler) RegisterProductRoutes(r gin.IRouter) {
	g := r.Group("/products")
	g.GET("", h.listProducts)
	g.GET("/options", h.productOptions)
	g.GET("/categories", h.productCategories)
	g.GET("/:id", h.getProduct)
}

func (h *Handler) listProducts(c *gin.Context) {
	q := catalog.ProductQuery{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Sort:     c.Query("sort"),
		Order:    c.Query("order"),
	}
	q.Page, _ = strconv.Atoi(c.Query("page"))
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	q.MinPrice, _ = strconv.ParseFloat(c.Query("minPrice"), 64)
	q.MaxPrice, _ = strconv.ParseFloat(c.Query("maxPrice"), 64)
	if v, err := strconv.ParseBool(c.Query("inStock")); err == nil {
		q.InStock = &v
	}

	page, err := h.products.List(c.Request.Context(), q)
	if err != nil {
		h.catalogError(c, "Failed to fetch products", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) productOptions(c *gin.Context) {
	opts, err := h.products.Options(c.Request.Context())
	if err != nil {
		h.catalogError(c, "Failed to fetch product options", err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (h *Handler) productCategories(c *gin.Context) {
	cats, err := h.products.Categories(c.Request.Context())
	if err != nil {
		h.catalogError(c, "Failed to fetch categories", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.catalogError(c, "Failed to fetch product", err)
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": p})
}

func (h *Handler) catalogError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.String(requestIDKey, c.GetString(requestIDKey)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
