package qrouter

import (
	"fmt"
	"sort"

	"github.com/pg-sharding/shrouter/router/routectx"
)

// Explain renders a route as report lines, one header line followed by
// one line per execution unit and one per annotation.
func Explain(rc *routectx.Context) []string {
	if rc == nil {
		return []string{"no route"}
	}
	header := fmt.Sprintf("strategy: %s", rc.Strategy)
	switch {
	case rc.Ignored:
		header += fmt.Sprintf(" (ignored, default data source %s)", rc.DefaultDataSource)
	case rc.Federated:
		header += " (federated)"
	case rc.Broadcast:
		header += " (broadcast)"
	}
	lines := []string{header}
	if len(rc.Units) == 0 && !rc.Ignored {
		lines = append(lines, "no data source matches")
	}
	for _, u := range rc.Units {
		line := fmt.Sprintf("data source %s", u.DataSource.Actual)
		if u.DataSource.Logic != u.DataSource.Actual {
			line += fmt.Sprintf(" (%s)", u.DataSource.Logic)
		}
		for _, m := range u.Tables {
			line += fmt.Sprintf(", %s -> %s", m.Logic, m.Actual)
		}
		lines = append(lines, line)
	}

	keys := make([]string, 0, len(rc.Annotations))
	for k := range rc.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s = %s", k, rc.Annotations[k]))
	}
	return lines
}
