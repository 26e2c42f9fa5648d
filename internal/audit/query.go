package audit

import (
	"context"
	"fmt"
)

// DefaultListLimit bounds list queries when the caller does not say how many
// rows it wants.
const DefaultListLimit = 50

// Query is the read side of the event log. It never mutates; every call is a
// single consistent read against the store.
type Query struct {
	store Store
}

// NewQuery creates the read-side service.
func NewQuery(store Store) *Query {
	return &Query{store: store}
}

// ListEvents returns the most recent records matching the filter.
func (q *Query) ListEvents(ctx context.Context, filter Filter, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	events, err := q.store.List(ctx, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Summarize returns total and grouped counts over the filtered window.
func (q *Query) Summarize(ctx context.Context, filter Filter) (Summary, error) {
	summary, err := q.store.Summarize(ctx, filter)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize events: %w", err)
	}
	return summary, nil
}
