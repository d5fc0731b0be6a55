package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
)

// GrantValue is the additional-usage entry for one quota: a purchasable
// counter for count quotas, an entitlement switch for flag quotas.
type GrantValue struct {
	Count   int64
	Enabled bool
}

// QuotaGrants is the non-recurring pool accumulated from packs, promos and
// bonuses. Counter entries serialize as numbers, flag entries as booleans,
// so the stored document matches what the rest of the product expects.
type QuotaGrants map[enums.Quota]GrantValue

// Value implements driver.Valuer.
func (g QuotaGrants) Value() (driver.Value, error) {
	out := make(map[enums.Quota]any, len(g))
	for quota, value := range g {
		if quota.Kind() == enums.QuotaKindFlag {
			out[quota] = value.Enabled
			continue
		}
		out[quota] = value.Count
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal quota grants: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (g *QuotaGrants) Scan(src any) error {
	if src == nil {
		*g = QuotaGrants{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported quota grants source %T", src)
	}
	if len(raw) == 0 {
		*g = QuotaGrants{}
		return nil
	}
	var decoded map[enums.Quota]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	grants := make(QuotaGrants, len(decoded))
	for quota, entry := range decoded {
		if quota.Kind() == enums.QuotaKindFlag {
			var enabled bool
			if err := json.Unmarshal(entry, &enabled); err != nil {
				return fmt.Errorf("decode flag grant %s: %w", quota, err)
			}
			grants[quota] = GrantValue{Enabled: enabled}
			continue
		}
		var count int64
		if err := json.Unmarshal(entry, &count); err != nil {
			return fmt.Errorf("decode count grant %s: %w", quota, err)
		}
		grants[quota] = GrantValue{Count: count}
	}
	*g = grants
	return nil
}

// Count returns the purchased balance for a counter quota, zero when absent.
func (g QuotaGrants) Count(quota enums.Quota) int64 {
	return g[quota].Count
}

// Enabled reports whether a flag quota is switched on.
func (g QuotaGrants) Enabled(quota enums.Quota) bool {
	return g[quota].Enabled
}

// AddCount folds purchased quantity into a counter quota.
func (g QuotaGrants) AddCount(quota enums.Quota, quantity int64) {
	entry := g[quota]
	entry.Count += quantity
	g[quota] = entry
}

// SetEnabled flips a flag quota.
func (g QuotaGrants) SetEnabled(quota enums.Quota, enabled bool) {
	entry := g[quota]
	entry.Enabled = enabled
	g[quota] = entry
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (g QuotaGrants) Clone() QuotaGrants {
	out := make(QuotaGrants, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}
