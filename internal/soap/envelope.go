package soap

import (
	"strings"
)

const (
	Namespace = "urn:microsoft-dynamics-schemas/codeunit/CustomerService"
	Operation = "CreateCustomer"
	Action    = Namespace + ":" + Operation

	envelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML replaces the five predefined XML entities.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// BuildEnvelope renders the SOAP 1.1 request for CreateCustomer.
func BuildEnvelope(f CustomerFields) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<soap:Envelope xmlns:soap="` + envelopeNamespace + `">`)
	b.WriteString(`<soap:Body>`)
	b.WriteString(`<` + Operation + ` xmlns="` + Namespace + `">`)

	for _, el := range []struct{ name, value string }{
		{"name", f.Name},
		{"address", f.Address},
		{"city", f.City},
		{"postalCode", f.PostalCode},
		{"countryCode", f.CountryCode},
		{"phone", f.Phone},
		{"email", f.Email},
		{"templateCode", f.TemplateCode},
	} {
		b.WriteString("<" + el.name + ">")
		b.WriteString(EscapeXML(el.value))
		b.WriteString("</" + el.name + ">")
	}

	b.WriteString(`</` + Operation + `>`)
	b.WriteString(`</soap:Body>`)
	b.WriteString(`</soap:Envelope>`)
	return b.String()
}
