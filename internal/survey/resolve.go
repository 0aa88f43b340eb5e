package survey

import (
	"strings"

	"surveyboard/internal"
	"surveyboard/internal/util"
)

type Reason string

const (
	ReasonExact   Reason = "EXACT"
	ReasonKeyword Reason = "KEYWORD"
	ReasonNone    Reason = "NONE"
)

// Resolution says which table column plays a role and how it was found.
type Resolution struct {
	Role    string `json:"role"`
	Column  string `json:"column,omitempty"`
	Reason  Reason `json:"reason"`
	Matched string `json:"matched,omitempty"`
}

func (r Resolution) Found() bool {
	return r.Reason != ReasonNone
}

// Resolver locates roles among a table's columns. Keyword probing is only
// enabled for sessions without a mapping table.
type Resolver struct {
	cfg      *Config
	columns  []string
	folded   []string
	keywords bool
}

func NewResolver(cfg *Config, columns []string, allowKeywords bool) *Resolver {
	folded := make([]string, len(columns))
	for i, c := range columns {
		folded[i] = " " + util.FoldKey(c) + " "
	}
	return &Resolver{cfg: cfg, columns: columns, folded: folded, keywords: allowKeywords}
}

// Resolve tries the role's exact names in order, then its keywords. For
// keywords the column matching the most keywords wins, earliest column on ties.
func (r *Resolver) Resolve(role string) Resolution {
	res := Resolution{Role: role, Reason: ReasonNone}
	def, ok := r.cfg.Role(role)
	if !ok {
		return res
	}

	for _, name := range def.Names {
		for _, col := range r.columns {
			if col == name {
				res.Column, res.Reason, res.Matched = col, ReasonExact, name
				return res
			}
		}
	}
	if !r.keywords {
		return res
	}

	best, bestHits, bestKeyword := -1, 0, ""
	for i, folded := range r.folded {
		hits, first := 0, ""
		for _, kw := range def.Keywords {
			if containsWords(folded, kw) {
				if hits == 0 {
					first = kw
				}
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits, bestKeyword = i, hits, first
		}
	}
	if best >= 0 {
		res.Column, res.Reason, res.Matched = r.columns[best], ReasonKeyword, bestKeyword
		internal.DefaultLogger.Debug("role %s resolved by keyword %q to column %s", role, bestKeyword, res.Column)
	}
	return res
}

// Column resolves a chart's column: an explicit column must exist as is, a
// role goes through Resolve.
func (r *Resolver) Column(ch Chart) Resolution {
	if ch.Role != "" {
		return r.Resolve(ch.Role)
	}
	res := Resolution{Role: ch.ID, Reason: ReasonNone}
	for _, col := range r.columns {
		if col == ch.Column {
			res.Column, res.Reason, res.Matched = col, ReasonExact, col
			break
		}
	}
	return res
}

// ResolveAll resolves every configured role in declaration order.
func (r *Resolver) ResolveAll() []Resolution {
	out := make([]Resolution, 0, len(r.cfg.Roles))
	for _, role := range r.cfg.Roles {
		out = append(out, r.Resolve(role.Name))
	}
	return out
}

// containsWords reports whether the folded keyword occurs in the padded
// folded header starting at a word boundary. Keywords may be stems.
func containsWords(paddedHeader, keyword string) bool {
	kw := util.FoldKey(keyword)
	if kw == "" {
		return false
	}
	return strings.Contains(paddedHeader, " "+kw)
}
