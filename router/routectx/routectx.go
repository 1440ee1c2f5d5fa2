package routectx

import (
	"sort"
	"strings"
)

// Mapper pairs a logic name with its actual counterpart.
type Mapper struct {
	Logic  string
	Actual string
}

type Unit struct {
	DataSource Mapper
	Tables     []Mapper
}

func (u Unit) key() string {
	parts := make([]string, 0, len(u.Tables))
	for _, t := range u.Tables {
		parts = append(parts, t.Logic+"="+t.Actual)
	}
	sort.Strings(parts)
	return u.DataSource.Actual + "|" + strings.Join(parts, ",")
}

// ActualTable returns the actual table of logic inside the unit.
func (u Unit) ActualTable(logic string) (string, bool) {
	for _, t := range u.Tables {
		if t.Logic == logic {
			return t.Actual, true
		}
	}
	return "", false
}

type Context struct {
	Units     []Unit
	Strategy  string
	Broadcast bool
	Federated bool
	// Ignored marks statements that need no sharding route at all. They go
	// to DefaultDataSource when one is configured.
	Ignored           bool
	DefaultDataSource string

	Annotations map[string]string
}

func New(strategy string) *Context {
	return &Context{Strategy: strategy}
}

// Add appends a unit unless an equal one is present.
func (c *Context) Add(u Unit) {
	k := u.key()
	for _, e := range c.Units {
		if e.key() == k {
			return
		}
	}
	c.Units = append(c.Units, u)
}

// Normalize deduplicates units and sorts them by data source and tables.
func (c *Context) Normalize() *Context {
	seen := make(map[string]struct{}, len(c.Units))
	units := make([]Unit, 0, len(c.Units))
	for _, u := range c.Units {
		sort.Slice(u.Tables, func(i, j int) bool {
			return u.Tables[i].Logic < u.Tables[j].Logic
		})
		k := u.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		return units[i].key() < units[j].key()
	})
	c.Units = units
	return c
}

// DataSourceNames lists distinct actual data sources in sorted order.
func (c *Context) DataSourceNames() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range c.Units {
		if _, ok := seen[u.DataSource.Actual]; ok {
			continue
		}
		seen[u.DataSource.Actual] = struct{}{}
		out = append(out, u.DataSource.Actual)
	}
	sort.Strings(out)
	return out
}

// ActualTables lists distinct actual tables of logic in sorted order.
func (c *Context) ActualTables(logic string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range c.Units {
		if a, ok := u.ActualTable(logic); ok {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Context) IsSingleDataSource() bool {
	return len(c.DataSourceNames()) == 1
}

// Annotate records a decorator annotation.
func (c *Context) Annotate(key, value string) {
	if c.Annotations == nil {
		c.Annotations = map[string]string{}
	}
	c.Annotations[key] = value
}

// Equal compares routes ignoring annotations and unit order.
func (c *Context) Equal(o *Context) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Strategy != o.Strategy || c.Broadcast != o.Broadcast || c.Federated != o.Federated ||
		c.Ignored != o.Ignored || c.DefaultDataSource != o.DefaultDataSource {
		return false
	}
	if len(c.Units) != len(o.Units) {
		return false
	}
	keys := make(map[string]int, len(c.Units))
	for _, u := range c.Units {
		keys[u.key()]++
	}
	for _, u := range o.Units {
		k := u.key()
		if keys[k] == 0 {
			return false
		}
		keys[k]--
	}
	return true
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := &Context{
		Strategy:  c.Strategy,
		Broadcast: c.Broadcast,
		Federated: c.Federated,
		Ignored:   c.Ignored,
		Units:     make([]Unit, 0, len(c.Units)),

		DefaultDataSource: c.DefaultDataSource,
	}
	for _, u := range c.Units {
		out.Units = append(out.Units, Unit{
			DataSource: u.DataSource,
			Tables:     append([]Mapper(nil), u.Tables...),
		})
	}
	if c.Annotations != nil {
		out.Annotations = make(map[string]string, len(c.Annotations))
		for k, v := range c.Annotations {
			out.Annotations[k] = v
		}
	}
	return out
}

func (c *Context) String() string {
	var b strings.Builder
	b.WriteString(c.Strategy)
	b.WriteString("[")
	for i, u := range c.Units {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(u.DataSource.Actual)
		if len(u.Tables) > 0 {
			b.WriteString(":")
			for j, t := range u.Tables {
				if j > 0 {
					b.WriteString(",")
				}
				b.WriteString(t.Actual)
			}
		}
	}
	b.WriteString("]")
	return b.String()
}
