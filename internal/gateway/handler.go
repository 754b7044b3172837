package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/winfrey-Git/customer-portal/internal/apperr"
	"github.com/winfrey-Git/customer-portal/internal/domain"
	"github.com/winfrey-Git/customer-portal/internal/erp"
	"github.com/winfrey-Git/customer-portal/internal/middleware"
	"github.com/winfrey-Git/customer-portal/internal/odata"
	"github.com/winfrey-Git/customer-portal/internal/soap"
	"github.com/winfrey-Git/customer-portal/internal/telemetry"
)

const (
	maxRequestBody          = 1 << 20
	defaultRegistrationPage = 50
	maxRegistrationPage     = 500
	publishTimeout          = 5 * time.Second
)

// forwardedHeaders are the caller headers passed through to the ERP.
var forwardedHeaders = []string{"If-Match", "Prefer", "Accept-Language"}

type CustomerCreator interface {
	CreateCustomer(ctx context.Context, fields soap.CustomerFields) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type RegistrationLister interface {
	List(ctx context.Context, limit int) ([]domain.CustomerRegistration, error)
}

type Handler struct {
	dispatcher        *Dispatcher
	service           *Service
	customers         CustomerCreator
	events            EventPublisher
	registrations     RegistrationLister
	propagateUpstream bool
	logger            *slog.Logger
}

type HandlerOption func(*Handler)

// WithEventPublisher announces created customers on the message bus.
func WithEventPublisher(p EventPublisher) HandlerOption {
	return func(h *Handler) {
		h.events = p
	}
}

func WithRegistrations(r RegistrationLister) HandlerOption {
	return func(h *Handler) {
		h.registrations = r
	}
}

// WithUpstreamStatus reports the ERP's own 4xx/5xx status for backend errors
// instead of 500.
func WithUpstreamStatus(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.propagateUpstream = enabled
	}
}

func NewHandler(dispatcher *Dispatcher, service *Service, customers CustomerCreator, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		dispatcher: dispatcher,
		service:    service,
		customers:  customers,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every gateway route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	mux.HandleFunc("GET /api/search", telemetry.WithHTTPRoute(h.HandleSearch))
	mux.HandleFunc("GET /api/customerTemplates", telemetry.WithHTTPRoute(h.HandleCustomerTemplates))
	mux.HandleFunc("POST /api/customers", telemetry.WithHTTPRoute(h.HandleCreateCustomer))

	mux.HandleFunc("GET /api/salesInvoices/{invoiceNo}", telemetry.WithHTTPRoute(h.HandleInvoice(SalesInvoice)))
	mux.HandleFunc("GET /api/postedSalesInvoices/{invoiceNo}", telemetry.WithHTTPRoute(h.HandleInvoice(PostedSalesInvoice)))

	mux.HandleFunc("GET /api/customers/{customerNo}/invoices",
		telemetry.WithHTTPRoute(h.HandleCustomerCollection(erp.EntitySalesInvoices, "Sell_to_Customer_No")))
	mux.HandleFunc("GET /api/customers/{customerNo}/posted-invoices",
		telemetry.WithHTTPRoute(h.HandleCustomerCollection(erp.EntityPostedSalesInvoices, "Sell_to_Customer_No")))
	mux.HandleFunc("GET /api/customers/{customerNo}/ledger-entries",
		telemetry.WithHTTPRoute(h.HandleCustomerCollection(erp.EntityCustomerLedgerEntries, "Customer_No")))

	if h.registrations != nil {
		mux.HandleFunc("GET /api/registrations", telemetry.WithHTTPRoute(h.HandleRegistrations))
	}

	mux.HandleFunc("GET /api/{entity}", telemetry.WithHTTPRoute(h.HandleList))
	mux.HandleFunc("POST /api/{entity}", telemetry.WithHTTPRoute(h.HandleCreate))
	mux.HandleFunc("GET /api/{entity}/{id}", telemetry.WithHTTPRoute(h.HandleGet))
	mux.HandleFunc("PATCH /api/{entity}/{id}", telemetry.WithHTTPRoute(h.HandleUpdate))
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.StatusOK, Call{
		Entity: r.PathValue("entity"),
		Query:  odata.ParseQuery(r.URL.Query()),
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.StatusOK, Call{
		Entity: r.PathValue("entity"),
		Key:    r.PathValue("id"),
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readJSONBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	call := Call{Method: http.MethodPost, Entity: r.PathValue("entity")}
	if body != nil {
		call.Body = body
	}
	h.forward(w, r, http.StatusCreated, call)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := readJSONBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	call := Call{
		Method: http.MethodPatch,
		Entity: r.PathValue("entity"),
		Key:    r.PathValue("id"),
		Header: forwardHeaders(r),
	}
	if body != nil {
		call.Body = body
	}
	if call.Header.Get("If-Match") == "" {
		call.Header.Set("If-Match", "*")
	}

	raw, err := h.dispatcher.Do(r.Context(), call)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeRaw(w, r, http.StatusOK, raw)
}

// HandleCustomerCollection lists entity rows belonging to the customer in
// the path, on top of any caller $ parameters.
func (h *Handler) HandleCustomerCollection(entity, customerField string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.forward(w, r, http.StatusOK, Call{
			Entity:  entity,
			Query:   odata.ParseQuery(r.URL.Query()),
			Clauses: []string{odata.Eq(customerField, r.PathValue("customerNo"))},
		})
	}
}

func (h *Handler) HandleInvoice(kind InvoiceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, err := h.service.GetInvoice(r.Context(), kind, r.PathValue("invoiceNo"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, invoice)
	}
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	limit, err := positiveInt(params.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results, err := h.service.Search(r.Context(), params.Get("q"), params.Get("type"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, results)
}

func (h *Handler) HandleCustomerTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.CustomerTemplates(r.Context(), odata.ParseQuery(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, templates)
}

func (h *Handler) HandleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var fields soap.CustomerFields
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&fields); err != nil {
		h.writeError(w, r, apperr.Caller("Invalid request body"))
		return
	}

	customerNo, err := h.customers.CreateCustomer(r.Context(), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.publishCustomerCreated(r.Context(), customerNo, fields.Trimmed())

	h.writeJSON(w, r, http.StatusCreated, map[string]string{"customerNo": customerNo})
}

// publishCustomerCreated is best effort; a failed publish is logged and the
// request still succeeds.
func (h *Handler) publishCustomerCreated(ctx context.Context, customerNo string, fields soap.CustomerFields) {
	if h.events == nil {
		return
	}

	event := domain.CustomerCreatedEvent{
		EventID:      uuid.NewString(),
		CustomerNo:   customerNo,
		Name:         fields.Name,
		Email:        fields.Email,
		City:         fields.City,
		CountryCode:  fields.CountryCode,
		TemplateCode: fields.TemplateCode,
		RequestID:    middleware.RequestIDFromContext(ctx),
		Timestamp:    time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := h.events.Publish(ctx, customerNo, event); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish customer created event", "error", err, "customer_no", customerNo)
		return
	}
	h.logger.InfoContext(ctx, "published customer created event", "customer_no", customerNo, "event_id", event.EventID)
}

func (h *Handler) HandleRegistrations(w http.ResponseWriter, r *http.Request) {
	limit, err := positiveInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultRegistrationPage
	}
	limit = min(limit, maxRegistrationPage)

	registrations, err := h.registrations.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, registrations)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, status int, call Call) {
	if call.Header == nil {
		call.Header = forwardHeaders(r)
	}

	raw, err := h.dispatcher.Do(r.Context(), call)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeRaw(w, r, status, raw)
}

func forwardHeaders(r *http.Request) http.Header {
	header := make(http.Header)
	for _, key := range forwardedHeaders {
		if v := r.Header.Get(key); v != "" {
			header.Set(key, v)
		}
	}
	return header
}

// readJSONBody returns the request body when present, or nil for an empty
// body. Non-JSON bodies are caller errors.
func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Caller("Request body too large")
		}
		return nil, apperr.Caller("Unreadable request body")
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, apperr.Caller("Invalid request body")
	}
	return json.RawMessage(data), nil
}

func positiveInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.Caller(field+" must be a positive integer", field)
	}
	return n, nil
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Message string   `json:"message,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err, h.propagateUpstream)

	resp := errorResponse{Error: "Internal server error"}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Details = appErr.Details
		resp.Fields = appErr.Fields
		if appErr.Err != nil {
			resp.Message = appErr.Err.Error()
		}
	}

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"kind", apperr.KindOf(err).String(),
		"error", err,
	)

	h.writeJSON(w, r, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handler) writeRaw(w http.ResponseWriter, r *http.Request, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(raw); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write response body", "error", err)
	}
}
