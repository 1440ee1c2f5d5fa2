package routehint

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/xerrors"

	"github.com/pg-sharding/shrouter/router/stmtctx"
)

const (
	optionPrefix = "__shrouter__"

	DataSourceOption    = optionPrefix + "data_source"
	DatabaseValueOption = optionPrefix + "database_value"
	TableValueOption    = optionPrefix + "table_value"
)

/*
key: value[, key1: value1...]
*/
func ParseComment(comm string) (map[string]string, error) {
	opts := make(map[string]string)

	for i := 0; i < len(comm); {
		if unicode.IsSpace(rune(comm[i])) {
			i++
			continue
		}

		j := i
		for ; j < len(comm) && comm[j] != ':' && !unicode.IsSpace(rune(comm[j])); j++ {
		}
		nameEnd := j

		if j == len(comm) {
			return nil, xerrors.New("invalid comment format")
		}
		if nameEnd == i {
			return nil, xerrors.New("invalid comment format: empty option name")
		}

		for ; j < len(comm) && unicode.IsSpace(rune(comm[j])); j++ {
		}
		if j == len(comm) || comm[j] != ':' {
			return nil, xerrors.New("invalid comment format: expected colon after option name")
		}
		j++

		for ; j < len(comm) && unicode.IsSpace(rune(comm[j])); j++ {
		}
		if j == len(comm) {
			return nil, xerrors.New("invalid comment format: empty option values")
		}

		valStart := j
		for j < len(comm) && !unicode.IsSpace(rune(comm[j])) && comm[j] != ',' {
			j++
		}

		name := comm[i:nameEnd]
		if after, ok := strings.CutPrefix(name, optionPrefix+"."); ok {
			name = optionPrefix + after
		}
		opts[name] = comm[valStart:j]

		for ; j < len(comm) && unicode.IsSpace(rune(comm[j])); j++ {
		}
		if j < len(comm) && comm[j] != ',' {
			return nil, xerrors.New("invalid comment format: expected comma after not-last key-value pair")
		}
		j++
		i = j
	}

	return opts, nil
}

// FromSQL builds a route hint from the first block comment of sql that
// carries routing options. It returns nil when there is none.
func FromSQL(sql string) (*stmtctx.Hint, error) {
	rest := sql
	for {
		start := strings.Index(rest, "/*")
		if start < 0 {
			return nil, nil
		}
		end := strings.Index(rest[start+2:], "*/")
		if end < 0 {
			return nil, xerrors.New("unterminated comment")
		}
		body := rest[start+2 : start+2+end]
		rest = rest[start+2+end+2:]

		if !strings.Contains(body, optionPrefix) {
			continue
		}
		opts, err := ParseComment(body)
		if err != nil {
			return nil, xerrors.Errorf("route hint: %w", err)
		}
		return FromOptions(opts), nil
	}
}

// FromOptions maps parsed comment options onto a hint. Values separated by
// '|' force several sharding values.
func FromOptions(opts map[string]string) *stmtctx.Hint {
	h := &stmtctx.Hint{DataSource: opts[DataSourceOption]}
	if v, ok := opts[DatabaseValueOption]; ok {
		h.DatabaseValues = parseValues(v)
	}
	if v, ok := opts[TableValueOption]; ok {
		h.TableValues = parseValues(v)
	}
	if h.Empty() {
		return nil
	}
	return h
}

func parseValues(s string) []any {
	var out []any
	for _, part := range strings.Split(s, "|") {
		if part == "" {
			continue
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, n)
			continue
		}
		out = append(out, strings.Trim(part, "'"))
	}
	return out
}
