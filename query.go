package neemo

import "strings"

// Result pairs a document with its key in query output.
type Result struct {
	Key string
	Doc Document
}

// AggOp selects the accumulator for Aggregate.
type AggOp string

const (
	AggSum   AggOp = "sum"
	AggCount AggOp = "count"
	AggAvg   AggOp = "avg"
)

// ParseAggOp validates a textual aggregate op.
func ParseAggOp(s string) (AggOp, error) {
	switch AggOp(strings.ToLower(s)) {
	case AggSum:
		return AggSum, nil
	case AggCount:
		return AggCount, nil
	case AggAvg:
		return AggAvg, nil
	default:
		return "", validationErrf("unknown aggregate op %q (want sum, count or avg)", s)
	}
}

// QueryEqual returns every document holding value in field. Entries whose
// document fetch fails (orphan or corruption) are skipped with a
// diagnostic rather than failing the query.
func (db *DB) QueryEqual(field string, value any) ([]Result, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var results []Result
	err := db.index.equalityScan(field, value, func(docKey string) error {
		doc, err := db.store.get(docKey)
		if err != nil {
			db.logger.Warn("skipping index hit with unreadable document", "key", docKey, "err", err)
			return nil
		}
		results = append(results, Result{Key: docKey, Doc: doc})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// QueryRange returns the documents whose field value falls in the
// half-open interval [start, end), ordered by canonical value; documents
// with equal values come out in key order.
func (db *DB) QueryRange(field string, start, end any) ([]Result, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var results []Result
	err := db.index.rangeScan(field, start, end, func(docKey string) error {
		doc, err := db.store.get(docKey)
		if err != nil {
			db.logger.Warn("skipping index hit with unreadable document", "key", docKey, "err", err)
			return nil
		}
		results = append(results, Result{Key: docKey, Doc: doc})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SearchText returns every document with a string value containing
// substr (case-sensitive), including strings nested inside arrays and
// objects. This is a deliberate full scan: cost is linear in document
// count, and no index accelerates it.
func (db *DB) SearchText(substr string) ([]Result, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var results []Result
	_, err := db.store.scan(func(key string, doc Document) error {
		for _, v := range doc {
			if valueContains(v, substr) {
				results = append(results, Result{Key: key, Doc: doc})
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func valueContains(v any, substr string) bool {
	switch v := v.(type) {
	case string:
		return strings.Contains(v, substr)
	case []any:
		for _, el := range v {
			if valueContains(el, substr) {
				return true
			}
		}
	case map[string]any:
		for _, el := range v {
			if valueContains(el, substr) {
				return true
			}
		}
	}
	return false
}

// Aggregate accumulates op over the numeric values of field across all
// documents (full scan). ok is false when the result is undefined: avg
// over zero matching documents has no value, and that is distinguishable
// from a legitimate zero sum or count.
func (db *DB) Aggregate(field string, op AggOp) (value float64, ok bool, err error) {
	switch op {
	case AggSum, AggCount, AggAvg:
	default:
		return 0, false, validationErrf("unknown aggregate op %q", op)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	var sum float64
	var n int
	_, err = db.store.scan(func(key string, doc Document) error {
		if f, isNum := doc[field].(float64); isNum {
			sum += f
			n++
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	switch op {
	case AggSum:
		return sum, true, nil
	case AggCount:
		return float64(n), true, nil
	default: // AggAvg
		if n == 0 {
			return 0, false, nil
		}
		return sum / float64(n), true, nil
	}
}
