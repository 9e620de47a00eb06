// Package features is the catalog of gated bot capabilities.
//
// Every feature key used by the permission engine, the override store and
// the suspension lifecycle must be registered here. The Sensitive flag is
// the only source for deciding whether a feature needs a security
// bootstrap before use.
package features

import (
	"sort"
	"strings"
)

// Key identifies one gated capability, e.g. "mod.ban".
type Key string

func (k Key) String() string { return string(k) }

// Module returns the subsystem prefix of the key ("mod" for "mod.ban").
func (k Key) Module() string {
	s := string(k)
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i]
	}
	return s
}

const (
	ModBan     Key = "mod.ban"
	ModKick    Key = "mod.kick"
	ModTimeout Key = "mod.timeout"
	ModPurge   Key = "mod.purge"
	ModWarn    Key = "mod.warn"

	ChannelLock     Key = "channel.lock"
	ChannelSlowmode Key = "channel.slowmode"

	VCSuspend    Key = "vc.suspend"
	VCMove       Key = "vc.move"
	VCDisconnect Key = "vc.disconnect"

	TicketsUse   Key = "tickets.use"
	TicketsAdmin Key = "tickets.admin"

	TemplatesUse    Key = "templates.use"
	TemplatesManage Key = "templates.manage"

	AIUse   Key = "ai.use"
	AIAdmin Key = "ai.admin"

	LogsConfig Key = "logs.config"
)

// Feature is a catalog entry.
type Feature struct {
	Key         Key    `json:"key"`
	Description string `json:"description"`
	Sensitive   bool   `json:"sensitive"`
}

// Module returns the feature's subsystem.
func (f Feature) Module() string { return f.Key.Module() }

var catalog = []Feature{
	{Key: ModBan, Description: "Ban members", Sensitive: true},
	{Key: ModKick, Description: "Kick members", Sensitive: true},
	{Key: ModTimeout, Description: "Time out members", Sensitive: true},
	{Key: ModPurge, Description: "Bulk delete messages", Sensitive: true},
	{Key: ModWarn, Description: "Warn members"},

	{Key: ChannelLock, Description: "Lock and unlock channels", Sensitive: true},
	{Key: ChannelSlowmode, Description: "Change channel slowmode", Sensitive: true},

	{Key: VCSuspend, Description: "Suspend members from voice chat", Sensitive: true},
	{Key: VCMove, Description: "Move members between voice channels", Sensitive: true},
	{Key: VCDisconnect, Description: "Disconnect members from voice", Sensitive: true},

	{Key: TicketsUse, Description: "Open and reply to tickets"},
	{Key: TicketsAdmin, Description: "Configure and close tickets", Sensitive: true},

	{Key: TemplatesUse, Description: "Post message templates"},
	{Key: TemplatesManage, Description: "Create, edit and delete templates", Sensitive: true},

	{Key: AIUse, Description: "Use AI chat"},
	{Key: AIAdmin, Description: "Manage AI settings and keys", Sensitive: true},

	{Key: LogsConfig, Description: "Configure log channels"},
}

var index = func() map[Key]Feature {
	m := make(map[Key]Feature, len(catalog))
	for _, f := range catalog {
		m[f.Key] = f
	}
	return m
}()

// Exists reports whether key is registered.
func Exists(key Key) bool {
	_, ok := index[key]
	return ok
}

// IsSensitive reports whether key gates a destructive or high-trust action.
// Unknown keys are not sensitive.
func IsSensitive(key Key) bool {
	return index[key].Sensitive
}

// Lookup returns the catalog entry for key.
func Lookup(key Key) (Feature, bool) {
	f, ok := index[key]
	return f, ok
}

// All returns every registered feature sorted by key.
func All() []Feature {
	out := make([]Feature, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Modules returns the distinct subsystem names in sorted order.
func Modules() []string {
	seen := make(map[string]struct{})
	var mods []string
	for _, f := range catalog {
		m := f.Module()
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		mods = append(mods, m)
	}
	sort.Strings(mods)
	return mods
}

// KeysForModules returns the set of keys belonging to the given modules.
// It is used to restrict listings to enabled modules.
func KeysForModules(modules ...string) map[Key]struct{} {
	want := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		m = strings.TrimSpace(strings.ToLower(m))
		if m != "" {
			want[m] = struct{}{}
		}
	}
	out := make(map[Key]struct{})
	for _, f := range catalog {
		if _, ok := want[f.Module()]; ok {
			out[f.Key] = struct{}{}
		}
	}
	return out
}

// Parse normalizes raw and reports whether it names a registered feature.
func Parse(raw string) (Key, bool) {
	key := Key(strings.TrimSpace(strings.ToLower(raw)))
	return key, Exists(key)
}
