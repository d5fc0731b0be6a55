// Package catalog is the static product catalog: subscription tiers with
// their recurring limit tables, and the purchasable add-on packs. The tables
// are code, not data, so the quota taxonomy stays type-checked end to end.
package catalog

import (
	"fmt"

	dbtypes "github.com/dkoroteev/genbot-backend/pkg/db/types"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Tier describes what one subscription level grants per period.
type Tier struct {
	ID           enums.SubscriptionTier
	MonthlyPrice decimal.Decimal
	Currency     enums.Currency
	DailyLimits  dbtypes.QuotaCounts
	// Flags granted for the whole period, cleared when the tier lapses.
	GrantedFlags []enums.Quota
}

var tiers = map[enums.SubscriptionTier]Tier{
	enums.SubscriptionTierFree: {
		ID:           enums.SubscriptionTierFree,
		MonthlyPrice: decimal.Zero,
		Currency:     enums.CurrencyRUB,
		DailyLimits: dbtypes.QuotaCounts{
			enums.QuotaGPT4OmniMini:    10,
			enums.QuotaClaudeHaiku:     10,
			enums.QuotaGeminiFlash:     10,
			enums.QuotaDalle:           1,
			enums.QuotaMidjourney:      1,
			enums.QuotaStableDiffusion: 1,
			enums.QuotaFlux:            1,
		},
	},
	enums.SubscriptionTierStandard: {
		ID:           enums.SubscriptionTierStandard,
		MonthlyPrice: decimal.NewFromInt(299),
		Currency:     enums.CurrencyRUB,
		DailyLimits: dbtypes.QuotaCounts{
			enums.QuotaGPT4OmniMini:    100,
			enums.QuotaClaudeHaiku:     100,
			enums.QuotaGeminiFlash:     100,
			enums.QuotaGPT4Omni:        10,
			enums.QuotaClaudeSonnet:    10,
			enums.QuotaGeminiPro:       10,
			enums.QuotaDalle:           10,
			enums.QuotaMidjourney:      10,
			enums.QuotaStableDiffusion: 10,
			enums.QuotaFlux:            10,
			enums.QuotaSuno:            3,
		},
		GrantedFlags: []enums.Quota{enums.QuotaRoleCatalog},
	},
	enums.SubscriptionTierPremium: {
		ID:           enums.SubscriptionTierPremium,
		MonthlyPrice: decimal.NewFromInt(749),
		Currency:     enums.CurrencyRUB,
		DailyLimits: dbtypes.QuotaCounts{
			enums.QuotaGPT4OmniMini:    300,
			enums.QuotaClaudeHaiku:     300,
			enums.QuotaGeminiFlash:     300,
			enums.QuotaGPT4Omni:        50,
			enums.QuotaClaudeSonnet:    50,
			enums.QuotaGeminiPro:       50,
			enums.QuotaDalle:           30,
			enums.QuotaMidjourney:      30,
			enums.QuotaStableDiffusion: 30,
			enums.QuotaFlux:            30,
			enums.QuotaSuno:            10,
			enums.QuotaKling:           5,
			enums.QuotaRunway:          5,
			enums.QuotaLuma:            5,
		},
		GrantedFlags: []enums.Quota{enums.QuotaVoiceMessages, enums.QuotaRoleCatalog},
	},
	enums.SubscriptionTierUnlimited: {
		ID:           enums.SubscriptionTierUnlimited,
		MonthlyPrice: decimal.NewFromInt(1990),
		Currency:     enums.CurrencyRUB,
		DailyLimits: func() dbtypes.QuotaCounts {
			limits := dbtypes.QuotaCounts{}
			for _, quota := range enums.CounterQuotas() {
				limits[quota] = 1000
			}
			return limits
		}(),
		GrantedFlags: []enums.Quota{enums.QuotaVoiceMessages, enums.QuotaRoleCatalog},
	},
}

// TierByID looks up a tier definition.
func TierByID(id enums.SubscriptionTier) (Tier, error) {
	tier, ok := tiers[id]
	if !ok {
		return Tier{}, fmt.Errorf("unknown subscription tier %q", id)
	}
	return tier, nil
}

// FreeTier returns the table applied when a subscription lapses.
func FreeTier() Tier {
	return tiers[enums.SubscriptionTierFree]
}

// TierGrantsFlag reports whether the tier includes the given entitlement flag.
func (t Tier) GrantsFlag(flag enums.Quota) bool {
	for _, granted := range t.GrantedFlags {
		if granted == flag {
			return true
		}
	}
	return false
}

// Product describes a purchasable add-on pack.
type Product struct {
	ID       string
	Quota    enums.Quota
	Price    decimal.Decimal
	Currency enums.Currency
	// Units is how many counter credits one purchased quantity grants.
	Units int64
	// Recurring products grant an entitlement flag for Quantity months
	// instead of adding counter credits.
	Recurring bool
}

var products = map[string]Product{
	"pack_gpt4_omni_50":     {ID: "pack_gpt4_omni_50", Quota: enums.QuotaGPT4Omni, Price: decimal.NewFromInt(149), Currency: enums.CurrencyRUB, Units: 50},
	"pack_claude_sonnet_50": {ID: "pack_claude_sonnet_50", Quota: enums.QuotaClaudeSonnet, Price: decimal.NewFromInt(149), Currency: enums.CurrencyRUB, Units: 50},
	"pack_dalle_10":         {ID: "pack_dalle_10", Quota: enums.QuotaDalle, Price: decimal.NewFromInt(99), Currency: enums.CurrencyRUB, Units: 10},
	"pack_midjourney_10":    {ID: "pack_midjourney_10", Quota: enums.QuotaMidjourney, Price: decimal.NewFromInt(119), Currency: enums.CurrencyRUB, Units: 10},
	"pack_flux_10":          {ID: "pack_flux_10", Quota: enums.QuotaFlux, Price: decimal.NewFromInt(99), Currency: enums.CurrencyRUB, Units: 10},
	"pack_suno_5":           {ID: "pack_suno_5", Quota: enums.QuotaSuno, Price: decimal.NewFromInt(129), Currency: enums.CurrencyRUB, Units: 5},
	"pack_kling_5":          {ID: "pack_kling_5", Quota: enums.QuotaKling, Price: decimal.NewFromInt(199), Currency: enums.CurrencyRUB, Units: 5},
	"pack_voice_messages":   {ID: "pack_voice_messages", Quota: enums.QuotaVoiceMessages, Price: decimal.NewFromInt(99), Currency: enums.CurrencyRUB, Recurring: true},
	"pack_role_catalog":     {ID: "pack_role_catalog", Quota: enums.QuotaRoleCatalog, Price: decimal.NewFromInt(79), Currency: enums.CurrencyRUB, Recurring: true},
}

// ProductByID looks up a pack product definition.
func ProductByID(id string) (Product, error) {
	product, ok := products[id]
	if !ok {
		return Product{}, fmt.Errorf("unknown product %q", id)
	}
	return product, nil
}

// FlagProducts returns all recurring-flag products, used by the expiry sweep.
func FlagProducts() []Product {
	out := make([]Product, 0, 2)
	for _, product := range products {
		if product.Recurring {
			out = append(out, product)
		}
	}
	return out
}

// DefaultRole is restored when the role-catalog entitlement lapses.
const DefaultRole = "assistant"
