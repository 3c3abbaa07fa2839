package distribution

// Entry is a unit paired with its resolved flyer count.
type Entry struct {
	Unit   Unit `json:"unit"`
	Flyers int  `json:"flyers"`
}

// Resolve returns the flyer count for the unit under the audience. Manual
// overrides apply to the housing categories only.
func Resolve(u Unit, a Audience) int {
	var count int
	switch a {
	case AudienceMultiFamily:
		count = pick(u.MultiFamilyOverride, u.Households.MultiFamily)
	case AudienceSingleFamily:
		count = pick(u.SingleFamilyOverride, u.Households.SingleFamily)
	default:
		count = u.Households.All
	}
	if count < 0 {
		return 0
	}
	return count
}

// ResolveAll resolves every unit in order.
func ResolveAll(units []Unit, a Audience) []Entry {
	entries := make([]Entry, 0, len(units))
	for _, u := range units {
		entries = append(entries, Entry{Unit: u, Flyers: Resolve(u, a)})
	}
	return entries
}

// TotalFlyers sums the resolved counts.
func TotalFlyers(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.Flyers
	}
	return total
}

func pick(override *int, households int) int {
	if override == nil {
		return households
	}
	v := *override
	if v > households {
		v = households
	}
	return v
}
