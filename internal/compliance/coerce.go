package compliance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var null = []byte("null")

// FlexString accepts a JSON string or number. The backend emits FEI numbers both ways.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, null) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(raw))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

// FlexInt accepts a JSON number, a numeric string, an empty string or null.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, null) {
		*n = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("flex int %q: %w", raw, err)
	}
	*n = FlexInt(v)
	return nil
}

// Int returns n as an int.
func (n FlexInt) Int() int { return int(n) }

// FlexFloat accepts a JSON number, a numeric string, an empty string or null.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	var n json.Number
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, null), bytes.Equal(data, []byte(`""`)):
		*f = 0
		return nil
	case len(data) > 0 && data[0] == '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		n = json.Number(strings.TrimSpace(raw))
	default:
		n = json.Number(data)
	}
	v, err := n.Float64()
	if err != nil {
		return fmt.Errorf("flex float %q: %w", string(n), err)
	}
	*f = FlexFloat(v)
	return nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "01/02/2006"}

// Date is a calendar date decoded from any of the layouts the backend uses.
// The zero value means the backend sent null or an empty string.
type Date struct {
	time.Time
}

// ParseDate parses raw using the accepted layouts.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Date{Time: t.UTC()}, nil
		}
	}
	return Date{}, fmt.Errorf("unrecognised date %q", raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), null) {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON writes the date as YYYY-MM-DD, or null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return null, nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}

// String renders the date for tables; zero dates render as an empty cell.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}
