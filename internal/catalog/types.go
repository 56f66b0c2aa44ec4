package catalog

// Profile is the threat profile a user selects. Values read back from storage
// may be unrecognized, so Profile stays string-backed and callers check Valid.
type Profile string

const (
	ProfileSigner Profile = "signer"
	ProfileSmall  Profile = "small"
	ProfileMedium Profile = "medium"
	ProfileLarge  Profile = "large"
)

// DefaultProfile is used when nothing has been persisted yet.
const DefaultProfile = ProfileLarge

// Profiles lists every profile in display order.
var Profiles = []Profile{ProfileSigner, ProfileSmall, ProfileMedium, ProfileLarge}

// Valid reports whether p is one of the known profiles.
func (p Profile) Valid() bool {
	switch p {
	case ProfileSigner, ProfileSmall, ProfileMedium, ProfileLarge:
		return true
	default:
		return false
	}
}

// Ordinal returns the position of p on the treasury axis (small=0, medium=1,
// large=2). Signer and unknown profiles are not on that axis.
func (p Profile) Ordinal() (int, bool) {
	switch p {
	case ProfileSmall:
		return 0, true
	case ProfileMedium:
		return 1, true
	case ProfileLarge:
		return 2, true
	case ProfileSigner:
		return 0, false
	default:
		return 0, false
	}
}

// Label is the short name shown next to a profile.
func (p Profile) Label() string {
	switch p {
	case ProfileSigner:
		return "Signer"
	case ProfileSmall:
		return "< $1M"
	case ProfileMedium:
		return "$1M+"
	case ProfileLarge:
		return "$10M+"
	default:
		return string(p)
	}
}

// ParseProfile validates user input.
func ParseProfile(s string) (Profile, error) {
	p := Profile(s)
	if !p.Valid() {
		return "", &UnknownValueError{Kind: "profile", Value: s}
	}
	return p, nil
}

// Priority ranks how urgent an item is.
type Priority string

const (
	PriorityCritical    Priority = "critical"
	PriorityEssential   Priority = "essential"
	PriorityRecommended Priority = "recommended"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityEssential, PriorityRecommended:
		return true
	default:
		return false
	}
}

// Section groups items into categories.
type Section string

const (
	SectionSignerSecurity          Section = "signer-security"
	SectionSafeMultisig            Section = "safe-multisig"
	SectionTransactionVerification Section = "transaction-verification"
	SectionMonitoring              Section = "monitoring"
	SectionEmergency               Section = "emergency"
)

func (s Section) Valid() bool {
	switch s {
	case SectionSignerSecurity, SectionSafeMultisig, SectionTransactionVerification,
		SectionMonitoring, SectionEmergency:
		return true
	default:
		return false
	}
}

// TreasuryOnly reports whether the section concerns treasury operators rather
// than individual signers.
func (s Section) TreasuryOnly() bool {
	switch s {
	case SectionSafeMultisig, SectionMonitoring:
		return true
	case SectionSignerSecurity, SectionTransactionVerification, SectionEmergency:
		return false
	default:
		return false
	}
}

// ParseSection validates user input.
func ParseSection(s string) (Section, error) {
	sec := Section(s)
	if !sec.Valid() {
		return "", &UnknownValueError{Kind: "section", Value: s}
	}
	return sec, nil
}

// Item is one checklist entry.
type Item struct {
	ID             string   `yaml:"id"`
	Section        Section  `yaml:"section"`
	Text           string   `yaml:"text"`
	Description    string   `yaml:"description,omitempty"`
	WhyImportant   string   `yaml:"whyImportant,omitempty"`
	HowToImplement string   `yaml:"howToImplement,omitempty"`
	Priority       Priority `yaml:"priority"`
	// MinimumProfile is empty when the item applies to every treasury profile.
	MinimumProfile Profile `yaml:"minimumProfile,omitempty"`
	// Signer marks items an individual signer is responsible for.
	Signer bool `yaml:"signer,omitempty"`
}

// SectionInfo carries display metadata for a section.
type SectionInfo struct {
	ID          Section `yaml:"id"`
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
}
