package logging

// #region query
// Query is a read-only view over stored records.
type Query struct {
	storage *Storage
}

// NewQuery creates a query view.
func NewQuery(storage *Storage) *Query {
	return &Query{storage: storage}
}

// Load returns every record.
func (q *Query) Load() ([]ErrorRecord, error) {
	return q.storage.Load("")
}

// FilterByCategory returns the records of one type.
func (q *Query) FilterByCategory(t ErrorType) ([]ErrorRecord, error) {
	return q.storage.Load(t)
}

// CountByType tallies the full log by type.
func (q *Query) CountByType() (map[ErrorType]int, error) {
	recs, err := q.Load()
	if err != nil {
		return nil, err
	}
	out := make(map[ErrorType]int)
	for _, r := range recs {
		out[r.ErrorType]++
	}
	return out, nil
}

// #endregion query
