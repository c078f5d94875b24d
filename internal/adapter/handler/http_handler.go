package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vrd2140/storefront/internal/auth"
	"github.com/vrd2140/storefront/internal/core/domain"
	"github.com/vrd2140/storefront/internal/core/service"
)

type HTTPHandler struct {
	orders  *service.OrderService
	catalog *service.CatalogService
	authSvc *service.AuthService
	tokens  *auth.TokenService
	logger  zerolog.Logger
}

func NewHTTPHandler(
	orders *service.OrderService,
	catalog *service.CatalogService,
	authSvc *service.AuthService,
	tokens *auth.TokenService,
	logger zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		orders:  orders,
		catalog: catalog,
		authSvc: authSvc,
		tokens:  tokens,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.StripSlashes)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Get("/healthz", h.healthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)
		r.Get("/inventory/{productID}", h.getStock)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/orders", h.createOrder)
			r.Get("/orders", h.listMyOrders)
			r.Get("/orders/{orderID}", h.getOrder)
			r.Post("/orders/{orderID}/cancel", h.cancelOrder)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Post("/products", h.createProduct)
				r.Put("/inventory/{productID}", h.setStock)
				r.Post("/orders/{orderID}/complete", h.completeOrder)
			})
		})
	})

	return r
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *HTTPHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.authSvc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:    user.ID,
		Email: user.Email,
		Role:  string(user.Role),
	})
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	User        userResponse `json:"user"`
}

func (h *HTTPHandler) login(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		User: userResponse{
			ID:    user.ID,
			Email: user.Email,
			Role:  string(user.Role),
		},
	})
}

type createProductRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	UnitPrice    string `json:"unit_price"`
	InitialStock int    `json:"initial_stock"`
}

type productResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UnitPrice   string `json:"unit_price"`
	Available   int    `json:"available"`
}

func (h *HTTPHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unit_price is not a valid decimal")
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), req.Name, req.Description, price, req.InitialStock)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, productResponse{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		UnitPrice:   product.UnitPrice.StringFixed(2),
		Available:   req.InitialStock,
	})
}

func (h *HTTPHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	listings, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]productResponse, 0, len(listings))
	for _, l := range listings {
		resp = append(resp, toProductResponse(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	listing, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(listing))
}

type setStockRequest struct {
	TotalStock int `json:"total_stock"`
}

type stockResponse struct {
	ProductID  string `json:"product_id"`
	TotalStock int    `json:"total_stock"`
	Reserved   int    `json:"reserved"`
	Available  int    `json:"available"`
}

func (h *HTTPHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	avail, err := h.catalog.SetStock(r.Context(), chi.URLParam(r, "productID"), req.TotalStock)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(avail))
}

func (h *HTTPHandler) getStock(w http.ResponseWriter, r *http.Request) {
	avail, err := h.catalog.Stock(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(avail))
}

type createOrderRequest struct {
	Lines []orderLineRequest `json:"lines"`
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	Lines     []orderLineResponse `json:"lines"`
	Total     string              `json:"total"`
	Status    string              `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

type orderLineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

func (h *HTTPHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]service.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, service.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	claims := claimsFrom(r.Context())
	order, err := h.orders.CreateOrder(r.Context(), claims.UserID, lines, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	orders, err := h.orders.GetUserOrders(r.Context(), claims.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}

	claims := claimsFrom(r.Context())
	if err := h.orders.CancelOrder(r.Context(), order.ID, claims.UserID); err != nil {
		h.respondError(w, err)
		return
	}

	updated, err := h.orders.GetOrder(r.Context(), order.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

func (h *HTTPHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := h.orders.CompleteOrder(r.Context(), orderID); err != nil {
		h.respondError(w, err)
		return
	}

	updated, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

func (h *HTTPHandler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadOwnedOrder enforces owner-or-admin access on order routes.
func (h *HTTPHandler) loadOwnedOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}

	claims := claimsFrom(r.Context())
	if order.UserID != claims.UserID && claims.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "not your order")
		return nil, false
	}
	return order, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	var (
		stockErr *domain.InsufficientStockError
		stateErr *domain.InvalidStateError
		inputErr *domain.InvalidInputError
		busyErr  *domain.BusyError
		storeErr *domain.StorageError
	)

	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, stockErr.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, stateErr.Error())
	case errors.As(err, &busyErr):
		writeError(w, http.StatusServiceUnavailable, busyErr.Error())
	case errors.As(err, &storeErr):
		h.logger.Error().Err(err).Msg("storage failure")
		writeError(w, http.StatusBadGateway, "storage unavailable")
	default:
		h.logger.Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toProductResponse(l *service.ProductListing) productResponse {
	return productResponse{
		ID:          l.Product.ID,
		Name:        l.Product.Name,
		Description: l.Product.Description,
		UnitPrice:   l.Product.UnitPrice.StringFixed(2),
		Available:   l.Available,
	}
}

func toStockResponse(a domain.Availability) stockResponse {
	return stockResponse{
		ProductID:  a.ProductID,
		TotalStock: a.TotalStock,
		Reserved:   a.Reserved,
		Available:  a.Available(),
	}
}

func toOrderResponse(o *domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Subtotal:  l.Subtotal().StringFixed(2),
		})
	}
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Lines:     lines,
		Total:     o.Total.StringFixed(2),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
