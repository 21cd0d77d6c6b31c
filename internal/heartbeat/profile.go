package heartbeat

import (
	"sort"
	"strings"
	"time"
)

// Profile describes how long a model may be silent before it looks stalled.
type Profile struct {
	// SoftProbe is the silence after which a liveness probe is due and the
	// teammate is reported as stalled.
	SoftProbe time.Duration `mapstructure:"soft_probe"`
	// ExpectedSilence is the silence considered normal while the model is
	// generating a response.
	ExpectedSilence time.Duration `mapstructure:"expected_silence"`
}

// DefaultProfile is used for models that match no known family.
var DefaultProfile = Profile{SoftProbe: 120 * time.Second, ExpectedSilence: 60 * time.Second}

type profileRule struct {
	match   string
	prefix  bool
	profile Profile
}

// Ordered so that more specific families win over broader ones.
var profileRules = []profileRule{
	{match: "opus", profile: Profile{SoftProbe: 180 * time.Second, ExpectedSilence: 90 * time.Second}},
	{match: "sonnet", profile: Profile{SoftProbe: 120 * time.Second, ExpectedSilence: 60 * time.Second}},
	{match: "haiku", profile: Profile{SoftProbe: 60 * time.Second, ExpectedSilence: 30 * time.Second}},
	{match: "kimi", profile: Profile{SoftProbe: 150 * time.Second, ExpectedSilence: 75 * time.Second}},
	{match: "moonshot", profile: Profile{SoftProbe: 150 * time.Second, ExpectedSilence: 75 * time.Second}},
	{match: "o1", prefix: true, profile: Profile{SoftProbe: 240 * time.Second, ExpectedSilence: 120 * time.Second}},
	{match: "o3", prefix: true, profile: Profile{SoftProbe: 240 * time.Second, ExpectedSilence: 120 * time.Second}},
	{match: "o4", prefix: true, profile: Profile{SoftProbe: 240 * time.Second, ExpectedSilence: 120 * time.Second}},
	{match: "gpt", profile: Profile{SoftProbe: 150 * time.Second, ExpectedSilence: 75 * time.Second}},
}

// ResolveProfile looks up the stall profile for a model name and merges any
// override whose key is contained in the name. Non-zero override fields
// replace the table values; the longest matching override key wins.
func ResolveProfile(model string, overrides map[string]Profile) Profile {
	name := strings.ToLower(model)
	p := DefaultProfile
	for _, r := range profileRules {
		if (r.prefix && strings.HasPrefix(name, r.match)) || (!r.prefix && strings.Contains(name, r.match)) {
			p = r.profile
			break
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if k != "" && strings.Contains(name, strings.ToLower(k)) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	if len(keys) > 0 {
		o := overrides[keys[0]]
		if o.SoftProbe > 0 {
			p.SoftProbe = o.SoftProbe
		}
		if o.ExpectedSilence > 0 {
			p.ExpectedSilence = o.ExpectedSilence
		}
	}

	if p.ExpectedSilence >= p.SoftProbe {
		p.ExpectedSilence = p.SoftProbe / 2
	}
	return p
}
