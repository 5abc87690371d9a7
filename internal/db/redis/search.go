package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/hvacsearch/internal/db"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
)

const (
	defaultVectorField = "embedding"
	scoreField         = "__vector_score"
)

// SearchKNN runs a filtered KNN vector similarity search via FT.SEARCH.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	vectorField := q.VectorField
	if vectorField == "" {
		vectorField = defaultVectorField
	}

	args := buildKNNArgs(q, vectorField)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("%w: %s", db.ErrIndexNotFound, q.IndexName)}
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw, vectorField)
}

func buildKNNArgs(q *db.KNNQuery, vectorField string) []string {
	prefilter := buildFilter(q.Filter)
	if prefilter == "" {
		prefilter = "*"
	} else {
		prefilter = "(" + prefilter + ")"
	}
	queryStr := fmt.Sprintf("%s=>[KNN %d @%s $BLOB AS %s]", prefilter, q.K, vectorField, scoreField)

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, scoreField)
	}

	return append(args,
		"SORTBY", scoreField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage, vectorField string) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if scoreStr, ok := entry.Fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = min(1, max(0, 1.0-d)) // cosine distance → similarity in [0,1]
			}
			delete(entry.Fields, scoreField)
		}
		delete(entry.Fields, vectorField)

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter translation ---

// buildFilter translates a metadata filter into an FT.SEARCH pre-filter.
// Strings and booleans match TAG fields; numbers match NUMERIC fields.
func buildFilter(f filter.Filter) string {
	if f.IsEmpty() {
		return ""
	}

	var parts []string
	for _, key := range f.Fields() {
		cond, _ := f.Condition(key)
		if clause := buildCondition(key, cond); clause != "" {
			parts = append(parts, clause)
		}
	}

	for _, sub := range f.AndClauses() {
		if clause := buildFilter(sub); clause != "" {
			parts = append(parts, "("+clause+")")
		}
	}

	if ors := f.OrClauses(); len(ors) > 0 {
		alts := make([]string, 0, len(ors))
		for _, sub := range ors {
			if clause := buildFilter(sub); clause != "" {
				alts = append(alts, "("+clause+")")
			}
		}
		if len(alts) > 0 {
			parts = append(parts, "("+strings.Join(alts, " | ")+")")
		}
	}

	return strings.Join(parts, " ")
}

func buildCondition(key string, cond filter.Condition) string {
	if v, ok := cond.EqValue(); ok {
		switch x := v.(type) {
		case string:
			return buildTagFilter(key, x)
		case bool:
			return buildTagFilter(key, strconv.FormatBool(x))
		case float64:
			n := formatNumber(x)
			return fmt.Sprintf("@%s:[%s %s]", key, n, n)
		}
	}
	if in := cond.InValues(); len(in) > 0 {
		escaped := make([]string, len(in))
		for i, v := range in {
			escaped[i] = tagEscaper.Replace(v)
		}
		return fmt.Sprintf("@%s:{%s}", key, strings.Join(escaped, " | "))
	}
	if cond.IsRange() {
		return buildNumericFilter(key, cond.GteValue(), cond.LteValue())
	}
	return ""
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

func buildNumericFilter(key string, gte, lte *float64) string {
	minBound := "-inf"
	maxBound := "+inf"
	if gte != nil {
		minBound = formatNumber(*gte)
	}
	if lte != nil {
		maxBound = formatNumber(*lte)
	}
	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
