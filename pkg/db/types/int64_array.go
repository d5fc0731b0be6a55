package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Int64Array stores a list of Telegram message ids as jsonb.
type Int64Array []int64

// Value implements driver.Valuer.
func (a Int64Array) Value() (driver.Value, error) {
	if a == nil {
		a = Int64Array{}
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal int64 array: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (a *Int64Array) Scan(src any) error {
	if src == nil {
		*a = Int64Array{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported int64 array source %T", src)
	}
	if len(raw) == 0 {
		*a = Int64Array{}
		return nil
	}
	return json.Unmarshal(raw, a)
}
