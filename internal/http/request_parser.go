// Request parsing shared by the form handlers. Bodies may be form encoded
// (HTMX) or JSON.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"budgetly/internal/core"
	"budgetly/internal/validate"
)

// maxBodyBytes caps every parsed request body.
const maxBodyBytes = 64 << 10

var ErrInvalidFilter = errors.New("invalid filter")

// FilterParams is a filter form submission. Year and Month are nil when the
// corresponding selector was not submitted.
type FilterParams struct {
	Mode  core.Mode
	Year  *int
	Month *int // zero-based
}

// ParseFilterParams reads mode, year and month. An empty mode keeps the
// current one.
func ParseFilterParams(form url.Values) (FilterParams, error) {
	var p FilterParams

	if v := strings.TrimSpace(form.Get("mode")); v != "" {
		mode, err := core.ParseMode(v)
		if err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		p.Mode = mode
	}

	intField := func(name string) (*int, error) {
		v := strings.TrimSpace(form.Get(name))
		if v == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidFilter, name, v)
		}
		return &n, nil
	}

	var err error
	if p.Year, err = intField("year"); err != nil {
		return p, err
	}
	if p.Month, err = intField("month"); err != nil {
		return p, err
	}
	return p, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of r's body once.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Values returns the form view of the body; JSON bodies are flattened to
// strings.
func (p *RequestBodyParser) Values() url.Values {
	if p.jsonData != nil {
		v := url.Values{}
		for k, val := range p.jsonData {
			v.Set(k, stringValue(val))
		}
		return v
	}
	if p.formData == nil {
		return url.Values{}
	}
	return p.formData
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// RawExpense maps the entry form onto the validator input.
func (p *RequestBodyParser) RawExpense() validate.RawExpense {
	return validate.RawExpense{
		Description: p.Get("description"),
		Amount:      p.Get("amount"),
		Category:    p.Get("category"),
		Date:        p.Get("date"),
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
