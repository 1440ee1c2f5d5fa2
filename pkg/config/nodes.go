package config

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ExpandNodes expands an inline data node expression.
//
// Segments are separated by commas outside of ${...} groups. Each group is
// either an inclusive integer range ${0..3} or a list ${a,b}. Multiple groups
// in one segment expand as a cartesian product, left group varying slowest.
//
//	ExpandNodes("ds_${0..1}.t_${0..1}")
//	// ds_0.t_0, ds_0.t_1, ds_1.t_0, ds_1.t_1
func ExpandNodes(expr string) ([]string, error) {
	segments, err := splitSegments(expr)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		expanded, err := expandSegment(seg)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func splitSegments(expr string) ([]string, error) {
	var segments []string
	depth := 0
	start := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return nil, errors.Errorf("unbalanced '}' at %d in %q", i, expr)
			}
		case ',':
			if depth == 0 {
				segments = append(segments, expr[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, errors.Errorf("unterminated group in %q", expr)
	}
	return append(segments, expr[start:]), nil
}

func expandSegment(seg string) ([]string, error) {
	open := strings.Index(seg, "${")
	if open < 0 {
		return []string{seg}, nil
	}
	closing := strings.IndexByte(seg[open:], '}')
	if closing < 0 {
		return nil, errors.Errorf("unterminated group in %q", seg)
	}
	closing += open

	choices, err := groupChoices(seg[open+2 : closing])
	if err != nil {
		return nil, errors.Wrapf(err, "segment %q", seg)
	}
	rest, err := expandSegment(seg[closing+1:])
	if err != nil {
		return nil, err
	}

	prefix := seg[:open]
	out := make([]string, 0, len(choices)*len(rest))
	for _, c := range choices {
		for _, r := range rest {
			out = append(out, prefix+c+r)
		}
	}
	return out, nil
}

func groupChoices(body string) ([]string, error) {
	if lo, hi, ok := strings.Cut(body, ".."); ok {
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, errors.Wrap(err, "range start")
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, errors.Wrap(err, "range end")
		}
		if to < from {
			return nil, errors.Errorf("empty range %d..%d", from, to)
		}
		out := make([]string, 0, to-from+1)
		for i := from; i <= to; i++ {
			out = append(out, strconv.Itoa(i))
		}
		return out, nil
	}

	parts := strings.Split(body, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errors.Errorf("empty choice in ${%s}", body)
		}
		out = append(out, p)
	}
	return out, nil
}
