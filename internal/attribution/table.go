package attribution

import (
	"fmt"

	"anonedits/internal/netaddr"
)

// Organization is a named set of address ranges.
type Organization struct {
	Name   string
	Ranges []netaddr.Range
}

// Table maps organization names to their ranges, in configuration order.
// It is built once and never modified.
type Table struct {
	orgs []Organization
}

// NewTable builds a table. Organization names must be unique.
func NewTable(orgs ...Organization) (*Table, error) {
	seen := make(map[string]struct{}, len(orgs))
	copied := make([]Organization, 0, len(orgs))

	for _, org := range orgs {
		if _, dup := seen[org.Name]; dup {
			return nil, fmt.Errorf("attribution: duplicate organization %q", org.Name)
		}
		seen[org.Name] = struct{}{}
		copied = append(copied, Organization{
			Name:   org.Name,
			Ranges: append([]netaddr.Range(nil), org.Ranges...),
		})
	}

	return &Table{orgs: copied}, nil
}

// Attribute returns every organization with at least one range containing
// addr, in table order. An address may belong to several organizations.
func (t *Table) Attribute(addr netaddr.Value) []string {
	if t == nil {
		return nil
	}

	var names []string
	for _, org := range t.orgs {
		if containsAny(org.Ranges, addr) {
			names = append(names, org.Name)
		}
	}
	return names
}

func containsAny(ranges []netaddr.Range, addr netaddr.Value) bool {
	for _, r := range ranges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Names lists the organizations in table order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.orgs))
	for i, org := range t.orgs {
		names[i] = org.Name
	}
	return names
}

// Len returns the number of organizations.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.orgs)
}

// RangeCount returns the total number of ranges across all organizations.
func (t *Table) RangeCount() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, org := range t.orgs {
		n += len(org.Ranges)
	}
	return n
}
