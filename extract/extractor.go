package extract

import (
	"errors"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/kbase/core"
)

// ErrMalformedText indicates the chunk is not valid UTF-8.
var ErrMalformedText = errors.New("malformed chunk text")

// Result holds what was found in one chunk. IDs and project are unset until Scope.
type Result struct {
	Entities      []core.Entity
	Relationships []core.Relationship
}

// Empty reports whether nothing was extracted.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Entities) == 0 && len(r.Relationships) == 0)
}

// Scope binds the result to a project and assigns identities.
func (r *Result) Scope(project core.ProjectID) ([]*core.Entity, []*core.Relationship) {
	entities := make([]*core.Entity, 0, len(r.Entities))
	for i := range r.Entities {
		e := r.Entities[i]
		e.ProjectID = project
		e.ID = core.EntityID(project, e.Type, e.Name)
		entities = append(entities, &e)
	}
	rels := make([]*core.Relationship, 0, len(r.Relationships))
	for i := range r.Relationships {
		rel := r.Relationships[i]
		rel.ProjectID = project
		rel.SourceID = core.EntityID(project, rel.SourceType, rel.SourceName)
		rel.TargetID = core.EntityID(project, rel.TargetType, rel.TargetName)
		rel.ID = core.RelationshipID(project, rel.SourceID, rel.TargetID, rel.Type)
		rels = append(rels, &rel)
	}
	return entities, rels
}

// Extractor applies matchers and relation rules to text. It is safe for concurrent use.
type Extractor struct {
	matchers []Matcher
	rules    []RelationRule
}

// New creates an Extractor. Matcher order breaks ties between types claiming the same span.
func New(matchers []Matcher, rules []RelationRule) *Extractor {
	return &Extractor{matchers: matchers, rules: rules}
}

// NewDefault creates an Extractor with the default matchers and rules.
func NewDefault() *Extractor {
	return New(DefaultMatchers(), DefaultRelationRules())
}

type entityKey struct {
	typ  core.EntityType
	name string
}

type span struct {
	start, end int
}

type claim struct {
	span
	matcher  int
	distance int
	name     string
}

type mention struct {
	span
	key entityKey
}

// Extract returns the entities and relationships found in text.
func (x *Extractor) Extract(text string) (*Result, error) {
	if !utf8.ValidString(text) {
		return nil, ErrMalformedText
	}
	res := &Result{}
	if strings.TrimSpace(text) == "" {
		return res, nil
	}

	claims := x.claimSpans(text)

	index := make(map[entityKey]int)
	var mentions []mention
	for _, c := range claims {
		m := x.matchers[c.matcher]
		key := entityKey{typ: m.Type, name: strings.ToLower(c.name)}
		i, seen := index[key]
		if !seen {
			i = len(res.Entities)
			index[key] = i
			res.Entities = append(res.Entities, core.Entity{Name: c.name, Type: m.Type})
		}
		res.Entities[i].Merge(attributesNear(text, c.span, m.Attributes))
		mentions = append(mentions, mention{span: c.span, key: key})
	}
	if len(res.Entities) == 0 {
		return res, nil
	}

	mentions = addRepeatMentions(text, mentions, res.Entities)
	res.Relationships = x.relate(text, mentions, res.Entities, index)
	return res, nil
}

// claimSpans resolves every candidate span to the matcher with the nearest keyword.
func (x *Extractor) claimSpans(text string) []claim {
	best := make(map[span]claim)
	consider := func(c claim) {
		lower := strings.ToLower(c.name)
		if isIgnored(c.name, lower) {
			return
		}
		prev, ok := best[c.span]
		if !ok || c.distance < prev.distance || (c.distance == prev.distance && c.matcher < prev.matcher) {
			best[c.span] = c
		}
	}

	for mi, m := range x.matchers {
		for _, re := range m.Captures {
			for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
				if len(loc) < 4 || loc[2] < 0 {
					continue
				}
				s := span{loc[2], loc[3]}
				consider(claim{span: s, matcher: mi, distance: 0, name: text[s.start:s.end]})
			}
		}

		if m.Keywords == nil || m.Candidate == nil {
			continue
		}
		keywords := standalone(text, toSpans(m.Keywords.FindAllStringIndex(text, -1)))
		if len(keywords) == 0 {
			continue
		}
		for _, loc := range m.Candidate.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if containedIn(s, keywords) {
				continue
			}
			d := nearest(s, keywords)
			if d > m.Window {
				continue
			}
			consider(claim{span: s, matcher: mi, distance: d, name: text[s.start:s.end]})
		}
	}

	claims := make([]claim, 0, len(best))
	for _, c := range best {
		claims = append(claims, c)
	}
	slices.SortFunc(claims, func(a, b claim) int {
		if a.start != b.start {
			return a.start - b.start
		}
		return a.end - b.end
	})
	return claims
}

// addRepeatMentions records later occurrences of already-identified names.
func addRepeatMentions(text string, mentions []mention, entities []core.Entity) []mention {
	known := make(map[span]struct{}, len(mentions))
	for _, m := range mentions {
		known[m.span] = struct{}{}
	}
	for _, e := range entities {
		re, err := regexp.Compile(`(?i)(?:^|[^A-Za-z0-9_])(` + regexp.QuoteMeta(e.Name) + `)(?:$|[^A-Za-z0-9_])`)
		if err != nil {
			continue
		}
		key := entityKey{typ: e.Type, name: strings.ToLower(e.Name)}
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			s := span{loc[2], loc[3]}
			if _, ok := known[s]; ok {
				continue
			}
			known[s] = struct{}{}
			mentions = append(mentions, mention{span: s, key: key})
		}
	}
	slices.SortFunc(mentions, func(a, b mention) int { return a.start - b.start })
	return mentions
}

func (x *Extractor) relate(text string, mentions []mention, entities []core.Entity, index map[entityKey]int) []core.Relationship {
	type relKey struct {
		src, dst entityKey
		typ      core.RelationType
	}
	seen := make(map[relKey]struct{})
	var rels []core.Relationship

	for _, rule := range x.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			kw := span{loc[0], loc[1]}
			left, right, ok := flanking(text, mentions, kw, rule.Window)
			if !ok || left.key == right.key {
				continue
			}
			src, dst := left.key, right.key
			if rule.Reverse {
				src, dst = dst, src
			}
			k := relKey{src: src, dst: dst, typ: rule.Type}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			s, d := entities[index[src]], entities[index[dst]]
			rels = append(rels, core.Relationship{
				SourceName: s.Name,
				SourceType: s.Type,
				TargetName: d.Name,
				TargetType: d.Type,
				Type:       rule.Type,
				Attributes: map[string]string{"evidence": strings.ToLower(text[kw.start:kw.end])},
			})
		}
	}
	return rels
}

// flanking finds the closest mention ending before kw and the closest starting
// after it. Neither may sit across a sentence boundary from kw.
func flanking(text string, mentions []mention, kw span, window int) (mention, mention, bool) {
	var left, right mention
	haveLeft, haveRight := false, false
	for _, m := range mentions {
		if m.end <= kw.start && kw.start-m.end <= window && !crossesSentence(text, m.end, kw.start) {
			if !haveLeft || m.end > left.end {
				left, haveLeft = m, true
			}
		}
		if m.start >= kw.end && m.start-kw.end <= window && !crossesSentence(text, kw.end, m.start) {
			if !haveRight || m.start < right.start {
				right, haveRight = m, true
			}
		}
	}
	return left, right, haveLeft && haveRight
}

// crossesSentence reports whether text[from:to] contains a line break, or a
// period or semicolon followed by whitespace or the end of text.
func crossesSentence(text string, from, to int) bool {
	for i := from; i < to; i++ {
		switch text[i] {
		case '\n':
			return true
		case '.', ';':
			if i+1 == len(text) || isSpace(text[i+1]) {
				return true
			}
		}
	}
	return false
}

// standalone drops keywords glued into a larger identifier, like "db" in db-02.
func standalone(text string, keywords []span) []span {
	out := keywords[:0]
	for _, k := range keywords {
		before := k.start >= 2 && isJoiner(text[k.start-1]) && isAlnum(text[k.start-2])
		after := k.end+1 < len(text) && isJoiner(text[k.end]) && isAlnum(text[k.end+1])
		if before || after {
			continue
		}
		out = append(out, k)
	}
	return out
}

func isJoiner(b byte) bool { return b == '-' || b == '_' || b == '.' }

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func attributesNear(text string, s span, extractors []AttributeExtractor) map[string]string {
	if len(extractors) == 0 {
		return nil
	}
	attrs := make(map[string]string)
	for _, ax := range extractors {
		lo := max(0, s.start-ax.Window)
		hi := min(len(text), s.end+ax.Window)
		region := text[lo:hi]

		bestDist := -1
		var value string
		for _, loc := range ax.Pattern.FindAllStringSubmatchIndex(region, -1) {
			vs, ve := loc[0], loc[1]
			if len(loc) >= 4 && loc[2] >= 0 {
				vs, ve = loc[2], loc[3]
			}
			d := gap(s, span{lo + vs, lo + ve})
			if bestDist < 0 || d < bestDist {
				bestDist = d
				value = region[vs:ve]
			}
		}
		if bestDist >= 0 {
			attrs[ax.Name] = value
		}
	}
	return attrs
}

func toSpans(locs [][]int) []span {
	spans := make([]span, len(locs))
	for i, loc := range locs {
		spans[i] = span{loc[0], loc[1]}
	}
	return spans
}

func containedIn(s span, spans []span) bool {
	for _, o := range spans {
		if s.start >= o.start && s.end <= o.end {
			return true
		}
	}
	return false
}

func nearest(s span, spans []span) int {
	best := -1
	for _, o := range spans {
		if d := gap(s, o); best < 0 || d < best {
			best = d
		}
	}
	return best
}

// gap is the number of bytes between two spans, zero when they overlap.
func gap(a, b span) int {
	switch {
	case a.end <= b.start:
		return b.start - a.end
	case b.end <= a.start:
		return a.start - b.end
	default:
		return 0
	}
}
