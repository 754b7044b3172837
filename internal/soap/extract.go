package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"
)

var ErrNoReturnValue = errors.New("no return_value element in response")

const returnValueElement = "return_value"

// ResultExtractor pulls the created customer number out of a SOAP response.
type ResultExtractor interface {
	Extract(body []byte) (string, error)
}

var returnValuePattern = regexp.MustCompile(`(?s)<return_value>(.*?)</return_value>`)

// RegexExtractor captures the text of the first return_value element as-is.
type RegexExtractor struct{}

func (RegexExtractor) Extract(body []byte) (string, error) {
	m := returnValuePattern.FindSubmatch(body)
	if m == nil {
		return "", ErrNoReturnValue
	}
	return strings.TrimSpace(string(m[1])), nil
}

// XMLExtractor walks the response tokens and returns the decoded character
// data of the first return_value element in any namespace.
type XMLExtractor struct{}

func (XMLExtractor) Extract(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", ErrNoReturnValue
		}
		if err != nil {
			return "", err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != returnValueElement {
			continue
		}

		var value string
		if err := dec.DecodeElement(&value, &start); err != nil {
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}

// NewExtractor returns the extractor registered under name. Unknown names
// fall back to the regex extractor.
func NewExtractor(name string) ResultExtractor {
	if strings.EqualFold(name, "xml") {
		return XMLExtractor{}
	}
	return RegexExtractor{}
}
