package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/orderflow/internal/order/application"
	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/idempotency"
	"github.com/dmehra2102/orderflow/pkg/logging"
	"github.com/dmehra2102/orderflow/pkg/metrics"
)

type orderService interface {
	CreateOrder(ctx context.Context, cmd application.CreateOrderCommand) (application.CreateOrderResult, error)
	CheckOrderCompletion(ctx context.Context, q application.CheckOrderCompletionQuery) (application.CheckOrderCompletionResult, error)
	RecentOrders(ctx context.Context, q application.RecentOrdersQuery) ([]application.OrderListItem, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log       *slog.Logger
	service   orderService
	redirects domain.RedirectURLs
	validate  *validator.Validate
	tracer    trace.Tracer

	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	idem     *idempotency.Store
	db       Pinger
}

type Option func(*Handler)

// WithMetrics instruments every route and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = g
	}
}

// WithIdempotency makes order creation honour the Idempotency-Key header.
func WithIdempotency(s *idempotency.Store) Option {
	return func(h *Handler) { h.idem = s }
}

// WithHealth makes /health ping db.
func WithHealth(db Pinger) Option {
	return func(h *Handler) { h.db = db }
}

func NewHandler(log *slog.Logger, service orderService, redirects domain.RedirectURLs, opts ...Option) *Handler {
	h := &Handler{
		log:       log,
		service:   service,
		redirects: redirects,
		validate:  newValidator(),
		tracer:    otel.Tracer("order-http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type createOrderResponse struct {
	UniqueOrderNumber string `json:"uniqueOrderNumber"`
	RedirectURL       string `json:"redirectUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type fieldErrorsResponse struct {
	Errors map[string]string `json:"errors"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(h.log))
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", metrics.Handler(h.gatherer))
	}

	r.Get("/health", h.health)

	create := r.With()
	if h.idem != nil {
		create = r.With(idempotency.Middleware(h.idem, h.log))
	}
	create.Post("/api/orders", h.createOrder)
	r.Get("/api/orders", h.recentOrders)
	r.Get("/api/orders/{uniqueOrderNumber}/complete", h.checkCompletion)

	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	cmd, rerr := decodeCreateOrder(h.validate, r.Body)
	if rerr != nil {
		span.SetStatus(codes.Error, "invalid request")
		writeRequestError(w, rerr)
		return
	}

	res, err := h.service.CreateOrder(ctx, cmd)
	if err != nil {
		h.writeError(ctx, span, w, err)
		return
	}

	u := domain.UniqueOrderNumber(res.UniqueOrderNumber)
	ct := domain.ContractorType(res.ContractorType)
	span.SetAttributes(
		attribute.String("order.unique_number", u.String()),
		attribute.String("order.contractor_type", ct.String()),
	)
	if h.metrics != nil {
		h.metrics.OrdersCreated.WithLabelValues(ct.String()).Inc()
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		UniqueOrderNumber: u.String(),
		RedirectURL:       h.redirects.For(u, ct),
	})
}

func (h *Handler) recentOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RecentOrders")
	defer span.End()

	limit, rerr := decodeRecentOrders(h.validate, r.URL.Query().Get("limit"))
	if rerr != nil {
		span.SetStatus(codes.Error, "invalid request")
		writeRequestError(w, rerr)
		return
	}
	span.SetAttributes(attribute.Int("orders.limit", limit))

	orders, err := h.service.RecentOrders(ctx, application.RecentOrdersQuery{Limit: limit})
	if err != nil {
		h.writeError(ctx, span, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) checkCompletion(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CheckOrderCompletion")
	defer span.End()

	u, rerr := decodeCompletion(h.validate, chi.URLParam(r, "uniqueOrderNumber"))
	if rerr != nil {
		span.SetStatus(codes.Error, "invalid request")
		writeRequestError(w, rerr)
		return
	}
	span.SetAttributes(attribute.String("order.unique_number", u))

	res, err := h.service.CheckOrderCompletion(ctx, application.CheckOrderCompletionQuery{UniqueOrderNumber: u})
	if err != nil {
		h.writeError(ctx, span, w, err)
		return
	}

	outcome := "pending"
	if res.IsPaid {
		outcome = "paid"
	}
	span.SetAttributes(attribute.String("order.completion", outcome))
	if h.metrics != nil {
		h.metrics.Completions.WithLabelValues(outcome).Inc()
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeError(ctx context.Context, span trace.Span, w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.log.ErrorContext(ctx, "request failed", "request_id", middleware.GetReqID(ctx), "err", err)
	}
	writeJSON(w, status, errorResponse{Error: clientMessage(err)})
}

func writeRequestError(w http.ResponseWriter, e *requestError) {
	if e.fields != nil {
		writeJSON(w, http.StatusBadRequest, fieldErrorsResponse{Errors: e.fields})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: e.message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
