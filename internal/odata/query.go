// Package odata assembles OData v4 request URLs from the portal's query
// parameters. It only builds syntax; validating expressions is left to the ERP.
package odata

import (
	"net/url"
	"strings"
)

// Query holds the recognized inbound OData parameters of one request.
type Query struct {
	Filter  string
	OrderBy string
	Top     string
	Skip    string
	Search  string
}

// ParseQuery extracts $filter, $orderby, $top, $skip and $search from values.
func ParseQuery(values url.Values) Query {
	return Query{
		Filter:  strings.TrimSpace(values.Get("$filter")),
		OrderBy: strings.TrimSpace(values.Get("$orderby")),
		Top:     strings.TrimSpace(values.Get("$top")),
		Skip:    strings.TrimSpace(values.Get("$skip")),
		Search:  strings.TrimSpace(values.Get("$search")),
	}
}

// Builder collects filter clauses and paging options for one entity set URL.
// Values are percent-encoded only when the URL is assembled.
type Builder struct {
	base    string
	clauses []string
	orderBy string
	top     string
	skip    string
}

func NewBuilder(base string) *Builder {
	return &Builder{base: base}
}

// Where adds a server-side clause that applies regardless of caller input.
func (b *Builder) Where(clause string) *Builder {
	if clause = strings.TrimSpace(clause); clause != "" {
		b.clauses = append(b.clauses, clause)
	}
	return b
}

// Filter adds the caller's raw $filter expression.
func (b *Builder) Filter(raw string) *Builder {
	return b.Where(raw)
}

// Search adds an OR'd contains() clause over fields. It is a no-op when the
// term is empty or the entity exposes no searchable fields.
func (b *Builder) Search(term string, fields ...string) *Builder {
	if strings.TrimSpace(term) == "" || len(fields) == 0 {
		return b
	}
	return b.Where(AnyContains(term, fields...))
}

func (b *Builder) OrderBy(orderBy string) *Builder {
	b.orderBy = orderBy
	return b
}

func (b *Builder) Top(top string) *Builder {
	b.top = top
	return b
}

func (b *Builder) Skip(skip string) *Builder {
	b.skip = skip
	return b
}

// FilterExpr returns the combined $filter expression, unencoded.
func (b *Builder) FilterExpr() string {
	switch len(b.clauses) {
	case 0:
		return ""
	case 1:
		return b.clauses[0]
	}

	parts := make([]string, len(b.clauses))
	for i, c := range b.clauses {
		parts[i] = "(" + c + ")"
	}
	return strings.Join(parts, " and ")
}

// URL returns the absolute request URL. Only supplied parameters are emitted,
// in the order $filter, $orderby, $top, $skip.
func (b *Builder) URL() string {
	var params []string
	if f := b.FilterExpr(); f != "" {
		params = append(params, "$filter="+EncodeComponent(f))
	}
	if b.orderBy != "" {
		params = append(params, "$orderby="+EncodeComponent(b.orderBy))
	}
	if b.top != "" {
		params = append(params, "$top="+EncodeComponent(b.top))
	}
	if b.skip != "" {
		params = append(params, "$skip="+EncodeComponent(b.skip))
	}

	if len(params) == 0 {
		return b.base
	}
	return b.base + "?" + strings.Join(params, "&")
}

// BuildURL is the one-shot form of Builder: server clauses first, then the
// caller filter, then the search clause over searchFields.
func BuildURL(base string, q Query, searchFields []string, serverClauses ...string) string {
	b := NewBuilder(base)
	for _, c := range serverClauses {
		b.Where(c)
	}
	return b.Filter(q.Filter).
		Search(q.Search, searchFields...).
		OrderBy(q.OrderBy).
		Top(q.Top).
		Skip(q.Skip).
		URL()
}

// EntityURL addresses a single entity by key: base('key').
func EntityURL(base, key string) string {
	return base + "('" + EncodeComponent(escapeQuotes(key)) + "')"
}

// EncodeComponent percent-encodes s for use in a path segment or query value.
// Spaces become %20 rather than '+'.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
