package odata

import "strings"

// Literal renders v as an OData string literal. Embedded single quotes are
// doubled so a value cannot terminate the literal early.
func Literal(v string) string {
	return "'" + escapeQuotes(v) + "'"
}

// Eq renders "field eq 'value'".
func Eq(field, value string) string {
	return field + " eq " + Literal(value)
}

// Contains renders "contains(field,'term')".
func Contains(field, term string) string {
	return "contains(" + field + "," + Literal(term) + ")"
}

// AnyContains ORs a contains() clause for each field.
func AnyContains(term string, fields ...string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, Contains(f, term))
	}
	return strings.Join(parts, " or ")
}

func escapeQuotes(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
