package decimal

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// Decimal is an exact base-10 number used for meter measures. It binds to the
// database as text so no float rounding sneaks in between parse and insert.
type Decimal struct {
	value apd.Decimal
}

func New(s string) (Decimal, error) {
	var d apd.Decimal
	_, _, err := d.SetString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal: %w", err)
	}
	return Decimal{value: d}, nil
}

func NewFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

// Zero returns the decimal 0.
func Zero() Decimal {
	return Decimal{}
}

// NewFromFloat converts a float through its shortest exact string form, the
// same digits the value was parsed from.
func NewFromFloat(f float64) (Decimal, error) {
	return New(strconv.FormatFloat(f, 'g', -1, 64))
}

// Parse accepts the value shapes raw records carry numbers in.
func Parse(v any) (Decimal, error) {
	switch value := v.(type) {
	case nil:
		return Decimal{}, fmt.Errorf("invalid decimal: nil")
	case Decimal:
		return value, nil
	case string:
		return New(value)
	case float64:
		return NewFromFloat(value)
	case float32:
		return NewFromFloat(float64(value))
	case int:
		return NewFromInt64(int64(value)), nil
	case int64:
		return NewFromInt64(value), nil
	case json.Number:
		return New(value.String())
	default:
		return Decimal{}, fmt.Errorf("invalid decimal: %T", v)
	}
}

func (d Decimal) String() string {
	return d.value.String()
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

// Float64 is a lossy view for logging and result payloads only.
func (d Decimal) Float64() float64 {
	f, _ := d.value.Float64()
	return f
}

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Sub returns the difference of d and other.
func (d Decimal) Sub(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Sub(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Text renders without exponent notation, the form bound to the database.
func (d Decimal) Text() string {
	return d.value.Text('f')
}

// Value implements driver.Valuer.
func (d Decimal) Value() (driver.Value, error) {
	return d.value.Text('f'), nil
}

// Scan implements sql.Scanner.
func (d *Decimal) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		d.value = apd.Decimal{}
		return nil
	case string:
		parsed, err := New(value)
		if err != nil {
			return err
		}
		d.value = parsed.value
		return nil
	case []byte:
		parsed, err := New(string(value))
		if err != nil {
			return err
		}
		d.value = parsed.value
		return nil
	case float64:
		parsed, err := NewFromFloat(value)
		if err != nil {
			return err
		}
		d.value = parsed.value
		return nil
	case int64:
		d.value.SetInt64(value)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Decimal", src)
	}
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.value.Text('f')), nil
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := New(s)
	if err != nil {
		return err
	}
	d.value = parsed.value
	return nil
}

// Null is a nullable Decimal for measures a source may not assert.
type Null struct {
	Decimal Decimal
	Valid   bool
}

func NullFrom(d Decimal) Null {
	return Null{Decimal: d, Valid: true}
}

// NullFromAny parses v when present; nil stays null without error.
func NullFromAny(v any) (Null, error) {
	if v == nil {
		return Null{}, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return Null{}, nil
	}
	d, err := Parse(v)
	if err != nil {
		return Null{}, err
	}
	return NullFrom(d), nil
}

// Value implements driver.Valuer.
func (n Null) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Decimal.Value()
}

// Scan implements sql.Scanner.
func (n *Null) Scan(src any) error {
	if src == nil {
		n.Decimal, n.Valid = Decimal{}, false
		return nil
	}
	if err := n.Decimal.Scan(src); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n Null) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return n.Decimal.MarshalJSON()
}

func (n *Null) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Decimal, n.Valid = Decimal{}, false
		return nil
	}
	if err := n.Decimal.UnmarshalJSON(data); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
