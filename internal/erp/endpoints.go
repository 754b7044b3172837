// Package erp describes the upstream ERP web services: where each entity set
// lives and how the gateway authenticates against it.
package erp

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/winfrey-Git/customer-portal/internal/apperr"
	"github.com/winfrey-Git/customer-portal/internal/odata"
)

var ErrUnknownEntity = errors.New("unknown entity")

// Logical entity keys used by the portal routes.
const (
	EntityCustomers               = "customers"
	EntityCustomerTemplates       = "customerTemplates"
	EntityCustomerLedgerEntries   = "customerLedgerEntries"
	EntityItems                   = "items"
	EntitySalesInvoices           = "salesInvoices"
	EntitySalesInvoiceLines       = "salesInvoiceLines"
	EntityPostedSalesInvoices     = "postedSalesInvoices"
	EntityPostedSalesInvoiceLines = "postedSalesInvoiceLines"
	EntitySalesOrders             = "salesOrders"
	EntitySalesQuotes             = "salesQuotes"
	EntityGeneralLedgerEntries    = "generalLedgerEntries"
	EntityVATPostingSetup         = "vatPostingSetup"
	EntityVATBusPostingGroups     = "vatBusinessPostingGroups"
	EntityVATProdPostingGroups    = "vatProductPostingGroups"
	EntityPaymentTerms            = "paymentTerms"
)

// EntitySet is a catalogue entry before it is bound to a base URL.
type EntitySet struct {
	Key          string
	Name         string
	KeyField     string
	SearchFields []string
}

// DefaultCatalogue lists the entity sets published by the ERP web services.
var DefaultCatalogue = []EntitySet{
	{Key: EntityCustomers, Name: "Customers", KeyField: "No_", SearchFields: []string{"Name", "No_"}},
	{Key: EntityCustomerTemplates, Name: "CustomerTemplates", KeyField: "Code"},
	{Key: EntityCustomerLedgerEntries, Name: "CustomerLedgerEntries", KeyField: "Entry_No"},
	{Key: EntityItems, Name: "Items", KeyField: "No_", SearchFields: []string{"Description", "No_"}},
	{Key: EntitySalesInvoices, Name: "SalesInvoices", KeyField: "No_", SearchFields: []string{"No_", "Sell_to_Customer_Name"}},
	{Key: EntitySalesInvoiceLines, Name: "SalesInvoiceLines", KeyField: "Document_No"},
	{Key: EntityPostedSalesInvoices, Name: "PostedSalesInvoices", KeyField: "No_", SearchFields: []string{"No_", "Sell_to_Customer_Name"}},
	{Key: EntityPostedSalesInvoiceLines, Name: "PostedSalesInvoiceLines", KeyField: "Document_No"},
	{Key: EntitySalesOrders, Name: "SalesOrders", KeyField: "No_", SearchFields: []string{"No_", "Sell_to_Customer_Name"}},
	{Key: EntitySalesQuotes, Name: "SalesQuotes", KeyField: "No_", SearchFields: []string{"No_", "Sell_to_Customer_Name"}},
	{Key: EntityGeneralLedgerEntries, Name: "GeneralLedgerEntries", KeyField: "Entry_No", SearchFields: []string{"Description", "Document_No"}},
	{Key: EntityVATPostingSetup, Name: "VATPostingSetup"},
	{Key: EntityVATBusPostingGroups, Name: "VATBusinessPostingGroups", KeyField: "Code", SearchFields: []string{"Code", "Description"}},
	{Key: EntityVATProdPostingGroups, Name: "VATProductPostingGroups", KeyField: "Code", SearchFields: []string{"Code", "Description"}},
	{Key: EntityPaymentTerms, Name: "PaymentTerms", KeyField: "Code", SearchFields: []string{"Code", "Description"}},
}

// Endpoint is an entity set bound to its absolute URL.
type Endpoint struct {
	Key          string
	EntitySet    string
	URL          string
	KeyField     string
	SearchFields []string
}

// EndpointTable maps logical entity keys to endpoints. It is built once at
// startup and never modified.
type EndpointTable struct {
	endpoints map[string]Endpoint
}

// NewEndpointTable binds catalogue to baseURL and company. overrides maps an
// entity key to a different entity set name; unknown keys add new entries.
func NewEndpointTable(baseURL, company string, catalogue []EntitySet, overrides map[string]string) (*EndpointTable, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("erp: base URL %q must be absolute", baseURL)
	}

	root := strings.TrimRight(baseURL, "/")
	if company != "" {
		root = odata.EntityURL(root+"/Company", company)
	}

	t := &EndpointTable{endpoints: make(map[string]Endpoint, len(catalogue)+len(overrides))}
	for _, set := range catalogue {
		name := set.Name
		if o, ok := overrides[set.Key]; ok && o != "" {
			name = o
		}
		t.endpoints[set.Key] = Endpoint{
			Key:          set.Key,
			EntitySet:    name,
			URL:          root + "/" + name,
			KeyField:     set.KeyField,
			SearchFields: slices.Clone(set.SearchFields),
		}
	}
	for key, name := range overrides {
		if _, ok := t.endpoints[key]; ok || name == "" {
			continue
		}
		t.endpoints[key] = Endpoint{Key: key, EntitySet: name, URL: root + "/" + name}
	}

	return t, nil
}

// Lookup returns the endpoint for key, or a configuration error.
func (t *EndpointTable) Lookup(key string) (Endpoint, error) {
	ep, ok := t.endpoints[key]
	if !ok {
		return Endpoint{}, apperr.Config(fmt.Sprintf("no ERP endpoint configured for %q", key), ErrUnknownEntity)
	}
	ep.SearchFields = slices.Clone(ep.SearchFields)
	return ep, nil
}

func (t *EndpointTable) Keys() []string {
	keys := make([]string, 0, len(t.endpoints))
	for k := range t.endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
