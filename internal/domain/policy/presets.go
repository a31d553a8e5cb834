package policy

// FailSecureDefault is the hard-coded policy applied when a source has
// no override and no preset: dangerous blocked, mutations gated behind
// approval, reads allowed.
func FailSecureDefault() SourcePolicy {
	return SourcePolicy{
		Blocked:  []ActionClass{ClassDangerous},
		Approval: []ActionClass{ClassWrite, ClassDelete},
		Allowed:  []ActionClass{ClassRead},
	}
}

// sourcePresets are the built-in per-source defaults. Interactive chat
// platforms get approval gates on mutations; automated webhook sources
// are stricter because nobody is present to supervise.
var sourcePresets = map[string]SourcePolicy{
	"slack": {
		Blocked:  []ActionClass{ClassDangerous},
		Approval: []ActionClass{ClassWrite, ClassDelete},
		Allowed:  []ActionClass{ClassRead},
	},
	"discord": {
		Blocked:  []ActionClass{ClassDangerous},
		Approval: []ActionClass{ClassWrite, ClassDelete},
		Allowed:  []ActionClass{ClassRead},
	},
	"telegram": {
		Blocked:  []ActionClass{ClassDangerous, ClassDelete},
		Approval: []ActionClass{ClassWrite},
		Allowed:  []ActionClass{ClassRead},
	},
	"github": {
		Blocked:  []ActionClass{ClassDangerous, ClassDelete},
		Approval: []ActionClass{ClassWrite},
		Allowed:  []ActionClass{ClassRead},
	},
	"gitlab": {
		Blocked:  []ActionClass{ClassDangerous, ClassDelete},
		Approval: []ActionClass{ClassWrite},
		Allowed:  []ActionClass{ClassRead},
	},
	"jira": {
		Blocked:  []ActionClass{ClassDangerous, ClassDelete},
		Approval: []ActionClass{ClassWrite},
		Allowed:  []ActionClass{ClassRead},
	},
	"linear": {
		Blocked:  []ActionClass{ClassDangerous, ClassDelete},
		Approval: []ActionClass{ClassWrite},
		Allowed:  []ActionClass{ClassRead},
	},
	// Incident tooling may need destructive remediation fast, but it is
	// always supervised.
	"pagerduty": {
		Blocked:  []ActionClass{ClassDangerous},
		Approval: []ActionClass{ClassWrite, ClassDelete},
		Allowed:  []ActionClass{ClassRead},
	},
	// Generic webhooks carry the least provenance: reads only.
	"webhook": {
		Blocked:  []ActionClass{ClassDangerous, ClassDelete, ClassWrite},
		Approval: nil,
		Allowed:  []ActionClass{ClassRead},
	},
	// Schedules run unattended; approval would block forever overnight,
	// so mutations are allowed but destructive classes are not.
	"schedule": {
		Blocked:  []ActionClass{ClassDangerous, ClassDelete},
		Approval: nil,
		Allowed:  []ActionClass{ClassRead, ClassWrite},
	},
}

// PresetFor returns the built-in policy for a source type.
func PresetFor(source string) (SourcePolicy, bool) {
	p, ok := sourcePresets[source]
	return p, ok
}

// PresetSources returns the source types with built-in policies.
func PresetSources() []string {
	names := make([]string, 0, len(sourcePresets))
	for name := range sourcePresets {
		names = append(names, name)
	}
	return names
}
