package ingest

import (
	"encoding/json"
	"strconv"
	"strings"

	"alchemist/internal/domain"
)

// cells resolves header aliases. Headers are compared after lowercasing and
// dropping spaces, underscores and dashes, so "Client ID", "client_id" and
// "ClientID" all match "clientid".
type cells struct {
	row  Row
	norm map[string]string
}

func normalizeHeader(h string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(h)))
}

func (c *cells) lookup(aliases ...string) (string, bool) {
	if c.norm == nil {
		c.norm = make(map[string]string, len(c.row))
		for k, v := range c.row {
			n := normalizeHeader(k)
			if _, ok := c.norm[n]; !ok {
				c.norm[n] = v
			}
		}
	}
	for _, a := range aliases {
		if v, ok := c.norm[a]; ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (c *cells) str(aliases ...string) string {
	v, _ := c.lookup(aliases...)
	return v
}

func (c *cells) integer(co *domain.Coercion, field string, aliases ...string) *int {
	v, _ := c.lookup(aliases...)
	if v == "" {
		return nil
	}
	n, ok := parseInt(v)
	if !ok {
		co.MarkMalformed(field)
		return nil
	}
	return &n
}

func (c *cells) float(co *domain.Coercion, field string, aliases ...string) *float64 {
	v, _ := c.lookup(aliases...)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		co.MarkMalformed(field)
		return nil
	}
	return &f
}

// list accepts a JSON array or a comma separated list.
func (c *cells) list(co *domain.Coercion, field string, aliases ...string) []string {
	v, _ := c.lookup(aliases...)
	if v == "" {
		return nil
	}
	if strings.HasPrefix(v, "[") {
		var raw []any
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			co.MarkMalformed(field)
			return nil
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			switch it := item.(type) {
			case string:
				if s := strings.TrimSpace(it); s != "" {
					out = append(out, s)
				}
			case float64:
				out = append(out, strconv.FormatFloat(it, 'f', -1, 64))
			default:
				co.MarkMalformed(field)
				return nil
			}
		}
		return out
	}
	if strings.HasPrefix(v, "{") {
		co.MarkMalformed(field)
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// phases accepts a JSON array, a comma separated list, or ranges such as
// "1-3" (expanded to 1,2,3) in either form.
func (c *cells) phases(co *domain.Coercion, field string, aliases ...string) []int {
	v, _ := c.lookup(aliases...)
	if v == "" {
		return nil
	}
	var tokens []string
	if strings.HasPrefix(v, "[") {
		var raw []any
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			co.MarkMalformed(field)
			return nil
		}
		for _, item := range raw {
			switch it := item.(type) {
			case string:
				tokens = append(tokens, it)
			case float64:
				tokens = append(tokens, strconv.FormatFloat(it, 'f', -1, 64))
			default:
				co.MarkMalformed(field)
				return nil
			}
		}
	} else {
		tokens = strings.Split(v, ",")
	}
	out := []int{}
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		expanded, ok := expandPhase(tok)
		if !ok {
			co.MarkMalformed(field)
			return nil
		}
		out = append(out, expanded...)
	}
	return out
}

const maxRangeSpan = 1000

func expandPhase(tok string) ([]int, bool) {
	if n, ok := parseInt(tok); ok {
		return []int{n}, true
	}
	lo, hi, found := strings.Cut(tok, "-")
	if !found {
		return nil, false
	}
	a, okA := parseInt(strings.TrimSpace(lo))
	b, okB := parseInt(strings.TrimSpace(hi))
	if !okA || !okB || a > b || b-a >= maxRangeSpan {
		return nil, false
	}
	out := make([]int, 0, b-a+1)
	for p := a; p <= b; p++ {
		out = append(out, p)
	}
	return out, true
}

// parseInt accepts integers and integral decimals such as "3.0".
func parseInt(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
