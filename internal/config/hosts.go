package config

import (
	"slices"
	"sort"
)

// Hosts returns a copy of the hosts in group. A missing group yields nil,
// which callers treat as an empty fleet rather than an error.
func (c *Config) Hosts(group string) []string {
	return slices.Clone(c.Groups[group])
}

// FilterHosts returns the hosts in group.
func FilterHosts(cfg *Config, group string) []string {
	if cfg == nil {
		return nil
	}
	return cfg.Hosts(group)
}

// GroupNames returns the configured group names in sorted order.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
