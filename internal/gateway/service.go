package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/winfrey-Git/customer-portal/internal/apperr"
	"github.com/winfrey-Git/customer-portal/internal/erp"
	"github.com/winfrey-Git/customer-portal/internal/odata"
)

const maxSearchLimit = 100

// InvoiceKind pairs an invoice header entity with its lines entity.
type InvoiceKind struct {
	Header   string
	Lines    string
	NotFound string
}

var (
	SalesInvoice = InvoiceKind{
		Header:   erp.EntitySalesInvoices,
		Lines:    erp.EntitySalesInvoiceLines,
		NotFound: "Sales invoice not found",
	}
	PostedSalesInvoice = InvoiceKind{
		Header:   erp.EntityPostedSalesInvoices,
		Lines:    erp.EntityPostedSalesInvoiceLines,
		NotFound: "Posted sales invoice not found",
	}
)

// searchTargets maps a search type to the entity it queries.
var searchTargets = map[string]string{
	"customers": erp.EntityCustomers,
	"items":     erp.EntityItems,
	"invoices":  erp.EntitySalesInvoices,
}

var searchOrder = []string{"customers", "items", "invoices"}

// CustomerTemplate is the portal's shape of an ERP customer template.
type CustomerTemplate struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	ContactType string `json:"contactType"`
}

type erpCustomerTemplate struct {
	Code        string `json:"Code"`
	Description string `json:"Description"`
	ContactType string `json:"Contact_Type"`
}

// Service composes dispatcher calls into the portal's multi-request reads.
type Service struct {
	dispatcher  *Dispatcher
	searchLimit int
	logger      *slog.Logger
}

func NewService(dispatcher *Dispatcher, searchLimit int, logger *slog.Logger) *Service {
	if searchLimit <= 0 || searchLimit > maxSearchLimit {
		searchLimit = 10
	}
	return &Service{
		dispatcher:  dispatcher,
		searchLimit: searchLimit,
		logger:      logger,
	}
}

// GetInvoice looks the header up by its business key, then attaches its
// lines. A failed lines fetch degrades to an empty list.
func (s *Service) GetInvoice(ctx context.Context, kind InvoiceKind, invoiceNo string) (map[string]json.RawMessage, error) {
	headerEP, err := s.dispatcher.Endpoint(kind.Header)
	if err != nil {
		return nil, err
	}

	rows, err := s.dispatcher.List(ctx, Call{
		Entity:  kind.Header,
		Query:   odata.Query{Top: "1"},
		Clauses: []string{odata.Eq(headerEP.KeyField, invoiceNo)},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s header: %w", kind.Header, err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound(kind.NotFound)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(rows[0], &header); err != nil || header == nil {
		return nil, apperr.Backend("invalid JSON from upstream", "invoice header is not an object", 0)
	}

	documentNo := invoiceNo
	if raw, ok := header[headerEP.KeyField]; ok {
		var no string
		if err := json.Unmarshal(raw, &no); err == nil && no != "" {
			documentNo = no
		}
	}

	lines, err := s.invoiceLines(ctx, kind, documentNo)
	if err != nil {
		s.logger.WarnContext(ctx, "invoice lines unavailable, returning header only",
			"entity", kind.Lines,
			"document_no", documentNo,
			"error", err,
		)
		lines = []json.RawMessage{}
	}

	encoded, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encode invoice lines: %w", err)
	}
	header["lines"] = encoded

	return header, nil
}

func (s *Service) invoiceLines(ctx context.Context, kind InvoiceKind, documentNo string) ([]json.RawMessage, error) {
	linesEP, err := s.dispatcher.Endpoint(kind.Lines)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.List(ctx, Call{
		Entity:  kind.Lines,
		Clauses: []string{odata.Eq(linesEP.KeyField, documentNo)},
	})
}

// Search queries each selected entity type concurrently. The first failing
// sub-request cancels the others and fails the search.
func (s *Service) Search(ctx context.Context, term, searchType string, limit int) (map[string][]json.RawMessage, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, apperr.Caller("Search query is required", "q")
	}

	selected, err := selectSearchTypes(searchType)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.searchLimit
	}
	limit = min(limit, maxSearchLimit)

	var mu sync.Mutex
	results := make(map[string][]json.RawMessage, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range selected {
		g.Go(func() error {
			rows, err := s.dispatcher.List(gctx, Call{
				Entity: searchTargets[name],
				Query:  odata.Query{Search: term, Top: strconv.Itoa(limit)},
			})
			if err != nil {
				return fmt.Errorf("search %s: %w", name, err)
			}

			mu.Lock()
			results[name] = rows
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func selectSearchTypes(searchType string) ([]string, error) {
	searchType = strings.ToLower(strings.TrimSpace(searchType))
	if searchType == "" || searchType == "all" {
		return searchOrder, nil
	}
	if _, ok := searchTargets[searchType]; !ok {
		err := apperr.Caller("Unsupported search type", "type")
		err.Details = "type must be one of all, customers, items, invoices"
		return nil, err
	}
	return []string{searchType}, nil
}

// CustomerTemplates lists the ERP customer templates in portal shape.
func (s *Service) CustomerTemplates(ctx context.Context, q odata.Query) ([]CustomerTemplate, error) {
	rows, err := s.dispatcher.List(ctx, Call{Entity: erp.EntityCustomerTemplates, Query: q})
	if err != nil {
		return nil, err
	}

	templates := make([]CustomerTemplate, 0, len(rows))
	for _, row := range rows {
		var t erpCustomerTemplate
		if err := json.Unmarshal(row, &t); err != nil {
			return nil, apperr.Backend("invalid JSON from upstream", "customer template is not an object", 0)
		}
		templates = append(templates, CustomerTemplate(t))
	}
	return templates, nil
}
