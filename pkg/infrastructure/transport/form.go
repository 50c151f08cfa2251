package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"storefront/pkg/common/domain"
)

// formReader parses optional form values; a field that is absent yields nil.
type formReader struct {
	r    *http.Request
	verr *domain.ValidationError
}

func newFormReader(r *http.Request) *formReader {
	return &formReader{r: r, verr: domain.NewValidationError()}
}

func (f *formReader) raw(field string) (string, bool) {
	values, ok := f.r.MultipartForm.Value[field]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (f *formReader) optString(field string) *string {
	value, ok := f.raw(field)
	if !ok {
		return nil
	}
	return &value
}

func (f *formReader) optInt(field string) *int {
	value, ok := f.raw(field)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		f.verr.Add(field, "must be an integer")
		return nil
	}
	return &n
}

func (f *formReader) optFloat(field string) *float64 {
	value, ok := f.raw(field)
	if !ok || value == "" {
		return nil
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		f.verr.Add(field, "must be a number")
		return nil
	}
	return &n
}

func (f *formReader) optBool(field string) *bool {
	value, ok := f.raw(field)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		f.verr.Add(field, "must be true or false")
		return nil
	}
	return &b
}

func (f *formReader) optDecimal(field string) *decimal.Decimal {
	value, ok := f.raw(field)
	if !ok {
		return nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		f.verr.Add(field, "must be a decimal number")
		return nil
	}
	return &d
}

// optJSON decodes a field holding JSON text into target and reports whether it was present.
func (f *formReader) optJSON(field string, target interface{}) bool {
	value, ok := f.raw(field)
	if !ok || value == "" {
		return false
	}
	if err := json.Unmarshal([]byte(value), target); err != nil {
		f.verr.Add(field, "must be valid JSON")
		return false
	}
	return true
}

func (f *formReader) err() error {
	return f.verr.Err()
}
