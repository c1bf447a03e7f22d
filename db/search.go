package db

import (
	"sort"
)

/*
DefaultTopK is used when Search is called with a non-positive topK
*/
const DefaultTopK = 3

/*
Rank scores every record against query by cosine similarity and returns the
best topK in descending score order.

This is an exact linear scan. Equal scores keep the order of records, so
earlier-added records rank first. If topK exceeds len(records) all records
are returned.
*/
func Rank(query []float64, records []VectorRecord, topK int) []Result {
	if len(records) == 0 || topK <= 0 {
		return []Result{}
	}

	results := make([]Result, len(records))
	for i, rec := range records {
		results[i] = Result{Record: rec, Score: CosineSimilarity(query, rec.Vector)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results
}
