// Package badges decodes Discord user flag bitfields into badge names.
package badges

// badge maps a single user flag bit to its display name.
type badge struct {
	bit  uint
	name string
}

// table is ordered by bit position. Decode output follows this order.
var table = []badge{
	{0, "staff"},
	{1, "partner"},
	{2, "hypesquad"},
	{3, "bug_hunter_level_1"},
	{6, "hypesquad_bravery"},
	{7, "hypesquad_brilliance"},
	{8, "hypesquad_balance"},
	{9, "early_supporter"},
	{10, "team_user"},
	{14, "bug_hunter_level_2"},
	{16, "verified_bot"},
	{17, "verified_developer"},
	{18, "certified_moderator"},
	{19, "bot_http_interactions"},
	{22, "active_developer"},
}

// Premium tiers as reported in the user object's premium_type field.
const (
	PremiumNone    = 0
	PremiumClassic = 1
	PremiumFull    = 2
)

// DecodeFlags returns the badges set in flags. Unknown bits are ignored.
func DecodeFlags(flags uint64) []string {
	out := make([]string, 0, 4)
	for _, b := range table {
		if flags&(1<<b.bit) != 0 {
			out = append(out, b.name)
		}
	}
	return out
}

// Decode returns the flag badges followed by at most one premium badge.
func Decode(flags uint64, premiumType int) []string {
	out := DecodeFlags(flags)
	if name := premiumBadge(premiumType); name != "" {
		out = append(out, name)
	}
	return out
}

func premiumBadge(premiumType int) string {
	switch premiumType {
	case PremiumClassic:
		return "nitro_classic"
	case PremiumFull:
		return "nitro"
	default:
		return ""
	}
}
