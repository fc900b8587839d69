package platform

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// The Flex* types decode remote fields whose JSON type drifts between
// platforms and API versions. Garbled values decode as absent instead of
// failing the whole order.

var null = []byte("null")

// FlexString accepts a string, number or boolean.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, null):
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			*s = ""
			return nil
		}
		*s = FlexString(strings.TrimSpace(v))
	case b[0] == '{' || b[0] == '[':
		*s = ""
	default:
		*s = FlexString(b)
	}
	return nil
}

func (s FlexString) String() string { return string(s) }

// Ptr returns nil for an absent or blank value.
func (s FlexString) Ptr() *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

// FlexDecimal accepts a number or a numeric string.
type FlexDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (d *FlexDecimal) UnmarshalJSON(b []byte) error {
	*d = FlexDecimal{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		raw = normalizeAmount(s)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	d.Decimal, d.Valid = v, true
	return nil
}

// normalizeAmount rewrites formatted amount strings into plain decimal form:
// "R$ 1.234,56" and "12,50" use a decimal comma, "1,234.56" a thousands
// comma. Whichever separator comes last is the decimal one.
func normalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	return s
}

func (d FlexDecimal) Ptr() *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// OrZero returns the value, or zero when absent.
func (d FlexDecimal) OrZero() decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// FlexInt accepts an integer, a float with no fractional part or a numeric string.
type FlexInt struct {
	Int   int
	Valid bool
}

func (i *FlexInt) UnmarshalJSON(b []byte) error {
	var d FlexDecimal
	_ = d.UnmarshalJSON(b)
	*i = FlexInt{}
	if d.Valid && d.Decimal.IsInteger() {
		i.Int, i.Valid = int(d.Decimal.IntPart()), true
	}
	return nil
}

func (i FlexInt) Ptr() *int {
	if !i.Valid {
		return nil
	}
	v := i.Int
	return &v
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FlexTime accepts the common API timestamp layouts or unix seconds.
// Timestamps without a zone are read as UTC.
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		return nil
	}
	if b[0] != '"' {
		if secs, err := strconv.ParseInt(string(b), 10, 64); err == nil && secs > 0 {
			t.Time = time.Unix(secs, 0).UTC()
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	t.Time = ParseTime(s)
	return nil
}

// ParseTime returns the zero time when s matches no known layout.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			return v.UTC()
		}
	}
	return time.Time{}
}

// Metadata collects platform extras, leaving out absent values so nested
// blocks appear only when the remote sent them.
type Metadata map[string]any

func (m Metadata) Set(key string, v any) {
	if isAbsent(v) {
		return
	}
	switch x := v.(type) {
	case FlexString:
		v = string(x)
	case FlexDecimal:
		v = x.Decimal
	case FlexInt:
		v = x.Int
	case FlexTime:
		if x.IsZero() {
			return
		}
		v = x.Time
	case *string:
		v = *x
	case *decimal.Decimal:
		v = *x
	case *int:
		v = *x
	case Metadata:
		v = map[string]any(x)
	}
	m[key] = v
}

// Block returns m, or nil when nothing was set.
func (m Metadata) Block() map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

func isAbsent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case FlexString:
		return x == ""
	case *string:
		return x == nil
	case FlexDecimal:
		return !x.Valid
	case *decimal.Decimal:
		return x == nil
	case FlexInt:
		return !x.Valid
	case *int:
		return x == nil
	case map[string]any:
		return len(x) == 0
	case Metadata:
		return len(x) == 0
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

// RawValue decodes raw into generic JSON values for verbatim preservation.
// Absent or invalid input returns nil.
func RawValue(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// DecodeLenient decodes raw into a T. ok is false when raw is absent or has
// a shape T cannot hold.
func DecodeLenient[T any](raw json.RawMessage) (T, bool) {
	var v T
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// FirstElement returns the first element of a JSON array, or nil.
func FirstElement(raw json.RawMessage) json.RawMessage {
	elems, ok := DecodeLenient[[]json.RawMessage](raw)
	if !ok || len(elems) == 0 {
		return nil
	}
	return elems[0]
}
