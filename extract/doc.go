// Package extract finds infrastructure entities and the relationships between
// them in chunk text.
//
// Extraction is pattern driven. An Extractor evaluates an ordered list of
// Matchers, one per entity type, and an ordered list of RelationRules. Each
// Matcher pairs trigger keywords ("server", "database", ...) with a candidate
// token pattern; a candidate is accepted when it sits within the matcher's
// window of one of its keywords. When several matchers claim the same span,
// the one whose keyword is nearest wins, earlier matchers breaking ties.
// Capture patterns name an entity directly ("the Payroll application").
//
// Relationships require a directional keyword ("hosts", "runs on",
// "depends on") between two entity mentions. Co-occurrence alone never
// produces an edge.
//
// Extraction is a pure function of its input. Adding an entity type is adding
// a Matcher:
//
//	ex := extract.New(append(extract.DefaultMatchers(), myMatcher), extract.DefaultRelationRules())
//	res, err := ex.Extract(chunk)
package extract
