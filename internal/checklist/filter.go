package checklist

import "multisigcheck/internal/catalog"

const separateOSItem = "separate-os"

// thresholdItems maps each signing-threshold item to the one profile it is
// shown for. Exactly one of them is visible for any treasury profile.
var thresholdItems = map[string]catalog.Profile{
	"threshold-2-of-3": catalog.ProfileSmall,
	"threshold-3-of-5": catalog.ProfileMedium,
	"threshold-4-of-7": catalog.ProfileLarge,
}

// Filter returns the items visible for profile, in catalog order. An empty
// section means every section.
func Filter(items []catalog.Item, profile catalog.Profile, section catalog.Section) []catalog.Item {
	out := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		if section != "" && it.Section != section {
			continue
		}
		if visible(it, profile, section) {
			out = append(out, it)
		}
	}
	return out
}

func visible(it catalog.Item, profile catalog.Profile, section catalog.Section) bool {
	if profile == catalog.ProfileSigner {
		// Treasury sections stay hidden from the signer overview even when an
		// item there is tagged, but can be browsed explicitly.
		if section == "" && it.Section.TreasuryOnly() {
			return false
		}
		return it.Signer
	}

	if want, ok := thresholdItems[it.ID]; ok {
		return want == profile
	}
	if it.ID == separateOSItem {
		return profile == catalog.ProfileSmall
	}
	if it.MinimumProfile == "" {
		return true
	}

	selected, ok := profile.Ordinal()
	if !ok {
		return false
	}
	minimum, ok := it.MinimumProfile.Ordinal()
	return ok && minimum <= selected
}
