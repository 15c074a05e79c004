package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/catalog"
	"github.com/grupo-shop/orderflow/internal/idempotency"
	"github.com/grupo-shop/orderflow/internal/lifecycle"
	"github.com/grupo-shop/orderflow/internal/orders"
	"github.com/grupo-shop/orderflow/internal/validation"
)

const idempotencyHeader = "Idempotency-Key"

// OrderService is the engine surface the HTTP layer needs.
type OrderService interface {
	CreateOrder(ctx context.Context, in lifecycle.CreateOrderInput) (*lifecycle.CreateOrderResult, error)
	VerifyPayment(ctx context.Context, in lifecycle.VerifyInput) (*lifecycle.VerifyResult, error)
	ReportPaymentFailure(ctx context.Context, orderID string) (*lifecycle.FailureResult, error)
	UpdateStatus(ctx context.Context, orderID string, status orders.Status) (*orders.Order, error)
	Get(ctx context.Context, idOrNumber string) (*orders.Order, error)
	Track(ctx context.Context, orderNumber string) (*orders.Order, error)
	List(ctx context.Context, q orders.ListQuery) (*orders.Page, error)
}

// ProductCatalog serves the read-only storefront catalog.
type ProductCatalog interface {
	Get(ctx context.Context, productID string) (*catalog.Product, error)
	List(ctx context.Context, q catalog.ProductQuery) (*catalog.ProductPage, error)
	Categories(ctx context.Context) ([]string, error)
	Options(ctx context.Context) (catalog.Options, error)
}

// IdempotencyStore guards order creation against client retries.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, requestHash string) (*idempotency.Record, idempotency.Outcome, error)
	Complete(ctx context.Context, key, orderID string, responseStatus int, responseBody string) error
	Fail(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the HTTP handlers.
// Idempotency and PaymentLimiter are optional.
type HandlerConfig struct {
	Orders         OrderService
	Products       ProductCatalog
	Idempotency    IdempotencyStore
	PaymentLimiter *RateLimiter
	Logger         *zap.Logger
	Environment    string
}

type Handler struct {
	orders      OrderService
	products    ProductCatalog
	idem        IdempotencyStore
	limiter     *RateLimiter
	logger      *zap.Logger
	environment string
	validate    *validatorv10.Validate
}

func New(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orders:      cfg.Orders,
		products:    cfg.Products,
		idem:        cfg.Idempotency,
		limiter:     cfg.PaymentLimiter,
		logger:      logger,
		environment: cfg.Environment,
		validate:    validation.New(),
	}
}

// RegisterOrdersRoutes registers the storefront and admin order routes.
func (h *Handler) RegisterOrdersRoutes(r gin.IRouter) {
	g := r.Group("/orders")

	payment := []gin.HandlerFunc{}
	if h.limiter != nil {
		payment = append(payment, h.limiter.Middleware())
	}

	g.POST("", append(payment, h.createOrder)...)
	g.POST("/create-order", append(payment, h.createOrder)...)
	g.POST("/verify-payment", append(payment, h.verifyPayment)...)
	g.POST("/payment-failed", h.paymentFailed)
	g.GET("/track/:orderNumber", h.track)

	g.GET("", h.listOrders)
	g.GET("/:id", h.getOrder)
	g.PATCH("/:id/status", h.updateStatus)
}

func (h *Handler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": []string{err.Error()}})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	key := c.GetHeader(idempotencyHeader)
	claimed := false
	if key != "" && h.idem != nil {
		rec, outcome, err := h.idem.Begin(ctx, key, idempotency.HashRequest(raw))
		if err != nil {
			h.writeError(c, err)
			return
		}
		switch outcome {
		case idempotency.Replay:
			c.Header("Idempotent-Replayed", "true")
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		case idempotency.InProgress:
			c.JSON(http.StatusConflict, gin.H{"error": "A request with this Idempotency-Key is already in progress"})
			return
		case idempotency.Mismatch:
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Idempotency-Key was already used with a different request"})
			return
		}
		claimed = true
	}

	res, err := h.orders.CreateOrder(ctx, req.Input())
	if err != nil {
		if claimed {
			if ferr := h.idem.Fail(ctx, key, err.Error()); ferr != nil {
				h.logger.Warn("release idempotency key", zap.String("idempotency_key", key), zap.Error(ferr))
			}
		}
		h.writeError(c, err)
		return
	}

	body, err := json.Marshal(res)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if claimed {
		if cerr := h.idem.Complete(ctx, key, res.OrderID, http.StatusCreated, string(body)); cerr != nil {
			h.logger.Warn("store idempotent response", zap.String("idempotency_key", key), zap.Error(cerr))
		}
	}

	c.Header("Location", "/api/orders/"+res.OrderID)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, nil); err != nil {
		return
	}
	res, err := h.orders.VerifyPayment(c.Request.Context(), req.Input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	msg := "Payment verified successfully"
	if res.AlreadyPaid {
		msg = "Payment already verified"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "order": summaryOf(res.Order)})
}

func (h *Handler) paymentFailed(c *gin.Context) {
	var req validation.PaymentFailedRequest
	if err := validation.BindAndValidate(c, &req, nil); err != nil {
		return
	}
	res, err := h.orders.ReportPaymentFailure(c.Request.Context(), req.OrderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": res.Message})
}

func (h *Handler) track(c *gin.Context) {
	o, err := h.orders.Track(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": trackingOf(o)})
}

func (h *Handler) getOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (h *Handler) listOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.orders.List(c.Request.Context(), orders.ListQuery{
		Status: orders.Status(c.Query("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req validation.UpdateStatusRequest
	if err := validation.BindAndValidate(c, &req, nil); err != nil {
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}
