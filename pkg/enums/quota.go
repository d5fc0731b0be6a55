package enums

import "fmt"

// Quota names one AI capability tracked per user, either as a usage counter
// or as an entitlement flag.
type Quota string

const (
	QuotaGPT4OmniMini Quota = "gpt4_omni_mini"
	QuotaClaudeHaiku  Quota = "claude_haiku"
	QuotaGeminiFlash  Quota = "gemini_flash"

	QuotaGPT4Omni     Quota = "gpt4_omni"
	QuotaClaudeSonnet Quota = "claude_sonnet"
	QuotaGeminiPro    Quota = "gemini_pro"

	QuotaDalle           Quota = "dalle"
	QuotaMidjourney      Quota = "midjourney"
	QuotaStableDiffusion Quota = "stable_diffusion"
	QuotaFlux            Quota = "flux"

	QuotaSuno Quota = "suno"

	QuotaKling  Quota = "kling"
	QuotaRunway Quota = "runway"
	QuotaLuma   Quota = "luma"

	QuotaVoiceMessages Quota = "voice_messages"
	QuotaRoleCatalog   Quota = "role_catalog"
)

// QuotaKind distinguishes counters from entitlement flags.
type QuotaKind string

const (
	QuotaKindCount QuotaKind = "count"
	QuotaKindFlag  QuotaKind = "flag"
)

// QuotaClass is a fixed set of counter quotas that share one recurring
// allowance pool. Decrementing any member of the class decrements them all.
type QuotaClass string

const (
	QuotaClassTextBasic    QuotaClass = "text_basic"
	QuotaClassTextAdvanced QuotaClass = "text_advanced"
	QuotaClassImage        QuotaClass = "image"
	QuotaClassMusic        QuotaClass = "music"
	QuotaClassVideo        QuotaClass = "video"
)

var quotaClassByQuota = map[Quota]QuotaClass{
	QuotaGPT4OmniMini: QuotaClassTextBasic,
	QuotaClaudeHaiku:  QuotaClassTextBasic,
	QuotaGeminiFlash:  QuotaClassTextBasic,

	QuotaGPT4Omni:     QuotaClassTextAdvanced,
	QuotaClaudeSonnet: QuotaClassTextAdvanced,
	QuotaGeminiPro:    QuotaClassTextAdvanced,

	QuotaDalle:           QuotaClassImage,
	QuotaMidjourney:      QuotaClassImage,
	QuotaStableDiffusion: QuotaClassImage,
	QuotaFlux:            QuotaClassImage,

	QuotaSuno: QuotaClassMusic,

	QuotaKling:  QuotaClassVideo,
	QuotaRunway: QuotaClassVideo,
	QuotaLuma:   QuotaClassVideo,
}

var flagQuotas = map[Quota]struct{}{
	QuotaVoiceMessages: {},
	QuotaRoleCatalog:   {},
}

var validQuotas = func() []Quota {
	quotas := make([]Quota, 0, len(quotaClassByQuota)+len(flagQuotas))
	for q := range quotaClassByQuota {
		quotas = append(quotas, q)
	}
	for q := range flagQuotas {
		quotas = append(quotas, q)
	}
	return quotas
}()

// String implements fmt.Stringer.
func (q Quota) String() string {
	return string(q)
}

// IsValid reports whether the value is known.
func (q Quota) IsValid() bool {
	if _, ok := quotaClassByQuota[q]; ok {
		return true
	}
	_, ok := flagQuotas[q]
	return ok
}

// Kind reports whether the quota is a counter or an entitlement flag.
func (q Quota) Kind() QuotaKind {
	if _, ok := flagQuotas[q]; ok {
		return QuotaKindFlag
	}
	return QuotaKindCount
}

// Class returns the equivalence class a counter quota belongs to. Flag quotas
// have no class.
func (q Quota) Class() (QuotaClass, bool) {
	class, ok := quotaClassByQuota[q]
	return class, ok
}

// Siblings returns every counter quota sharing the receiver's recurring pool,
// the receiver included. Flag quotas have no siblings.
func (q Quota) Siblings() []Quota {
	class, ok := quotaClassByQuota[q]
	if !ok {
		return nil
	}
	siblings := make([]Quota, 0, 4)
	for _, candidate := range quotaClassMembers[class] {
		siblings = append(siblings, candidate)
	}
	return siblings
}

// quotaClassMembers keeps sibling ordering stable for deterministic updates.
var quotaClassMembers = map[QuotaClass][]Quota{
	QuotaClassTextBasic:    {QuotaGPT4OmniMini, QuotaClaudeHaiku, QuotaGeminiFlash},
	QuotaClassTextAdvanced: {QuotaGPT4Omni, QuotaClaudeSonnet, QuotaGeminiPro},
	QuotaClassImage:        {QuotaDalle, QuotaMidjourney, QuotaStableDiffusion, QuotaFlux},
	QuotaClassMusic:        {QuotaSuno},
	QuotaClassVideo:        {QuotaKling, QuotaRunway, QuotaLuma},
}

// CounterQuotas returns all counter quotas grouped by nothing in particular;
// callers use it to seed limit tables.
func CounterQuotas() []Quota {
	quotas := make([]Quota, 0, len(quotaClassByQuota))
	for _, class := range []QuotaClass{
		QuotaClassTextBasic,
		QuotaClassTextAdvanced,
		QuotaClassImage,
		QuotaClassMusic,
		QuotaClassVideo,
	} {
		quotas = append(quotas, quotaClassMembers[class]...)
	}
	return quotas
}

// ParseQuota converts raw input into a Quota.
func ParseQuota(value string) (Quota, error) {
	for _, candidate := range validQuotas {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quota %q", value)
}
