// Package lexical adapts Elasticsearch as the structured filtering index:
// a typed subset of the query DSL, document writes, and alias management for
// zero-downtime cutover.
package lexical

// Query is the subset of the Elasticsearch query DSL the service emits.
// Exactly one member should be set.
type Query struct {
	Bool     *BoolQuery             `json:"bool,omitempty"`
	Match    map[string]MatchParams `json:"match,omitempty"`
	Range    map[string]RangeParams `json:"range,omitempty"`
	Terms    map[string][]string    `json:"terms,omitempty"`
	IDs      *IDsParams             `json:"ids,omitempty"`
	MatchAll *struct{}              `json:"match_all,omitempty"`
}

type BoolQuery struct {
	Must               []Query `json:"must,omitempty"`
	Should             []Query `json:"should,omitempty"`
	MustNot            []Query `json:"must_not,omitempty"`
	MinimumShouldMatch *int    `json:"minimum_should_match,omitempty"`
}

type MatchParams struct {
	Query     string `json:"query"`
	Fuzziness string `json:"fuzziness,omitempty"`
}

type RangeParams struct {
	GTE *float64 `json:"gte,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

type IDsParams struct {
	Values []string `json:"values"`
}

// Match builds an exact match clause on field.
func Match(field, text string) Query {
	return Query{Match: map[string]MatchParams{field: {Query: text}}}
}

// MatchFuzzy builds a match clause with AUTO fuzziness.
func MatchFuzzy(field, text string) Query {
	return Query{Match: map[string]MatchParams{field: {Query: text, Fuzziness: "AUTO"}}}
}

// Range builds a numeric range clause; nil bounds are omitted.
func Range(field string, gte, lte *float64) Query {
	return Query{Range: map[string]RangeParams{field: {GTE: gte, LTE: lte}}}
}

// TermsAny builds a terms clause matching documents where field holds any of
// the values.
func TermsAny(field string, values []string) Query {
	return Query{Terms: map[string][]string{field: values}}
}

// ByIDs builds an ids clause on document _id values.
func ByIDs(ids []string) Query {
	return Query{IDs: &IDsParams{Values: ids}}
}

// MatchAll matches every document.
func MatchAll() Query {
	return Query{MatchAll: &struct{}{}}
}

// Bool assembles a bool query. When every clause list is empty the result
// degenerates to match_all, mirroring how an unfiltered search should behave.
func Bool(must, should, mustNot []Query, minimumShouldMatch int) Query {
	if len(must) == 0 && len(should) == 0 && len(mustNot) == 0 {
		return MatchAll()
	}
	q := Query{Bool: &BoolQuery{Must: must, MustNot: mustNot}}
	if len(should) > 0 {
		q.Bool.Should = should
		msm := minimumShouldMatch
		q.Bool.MinimumShouldMatch = &msm
	}
	return q
}
