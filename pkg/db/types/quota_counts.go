package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
)

// QuotaCounts is the recurring allowance pool, reset wholesale from the tier
// table on every subscription activation or rollover. Stored as jsonb.
type QuotaCounts map[enums.Quota]int64

// Value implements driver.Valuer.
func (q QuotaCounts) Value() (driver.Value, error) {
	if q == nil {
		q = QuotaCounts{}
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal quota counts: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (q *QuotaCounts) Scan(src any) error {
	if src == nil {
		*q = QuotaCounts{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported quota counts source %T", src)
	}
	if len(raw) == 0 {
		*q = QuotaCounts{}
		return nil
	}
	return json.Unmarshal(raw, q)
}

// Get returns the remaining allowance for the quota, zero when absent.
func (q QuotaCounts) Get(quota enums.Quota) int64 {
	return q[quota]
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (q QuotaCounts) Clone() QuotaCounts {
	out := make(QuotaCounts, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}
