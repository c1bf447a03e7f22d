package db

/*
VectorRecord is a stored document together with its embedding
*/
type VectorRecord struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Vector   []float64 `json:"vector"`
	Metadata Metadata  `json:"metadata"`
}

/*
Result is a record ranked against a query
*/
type Result struct {
	Record VectorRecord `json:"record"`
	Score  float64      `json:"score"`
}

/*
clone returns a deep copy so callers cannot alter stored state
*/
func (r VectorRecord) clone() VectorRecord {
	out := r
	if r.Vector != nil {
		out.Vector = make([]float64, len(r.Vector))
		copy(out.Vector, r.Vector)
	}
	out.Metadata = r.Metadata.Clone()
	return out
}
