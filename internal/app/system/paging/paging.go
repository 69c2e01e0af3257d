// internal/app/system/paging/paging.go
package paging

import (
	"net/http"

	"github.com/dalemusser/waffle/pantry/query"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PageSize is the default number of items in a paged list.
const PageSize = 50

// LimitPlusOne returns PageSize+1 as int64 for look-ahead pagination
// (fetch one extra document to detect hasNext).
func LimitPlusOne() int64 { return int64(PageSize + 1) }

// Cursors reads the "before" and "after" query parameters.
func Cursors(r *http.Request) (before, after string) {
	return query.Get(r, "before"), query.Get(r, "after")
}

// Result holds the output of TrimPage for keyset pagination.
type Result struct {
	HasPrev bool
	HasNext bool
}

// TrimPage trims a fetched slice for keyset pagination.
// Call this after fetching PageSize+1 rows. It modifies the slice in place
// and returns pagination indicators.
//
// When going backwards (before != ""):
//   - If len > PageSize, trim the first element (older page exists)
//   - HasNext is always true (we came from somewhere)
//
// When going forwards or on first page:
//   - If len > PageSize, trim to PageSize (next page exists)
//   - HasPrev is true only if after != ""
func TrimPage[T any](rows *[]T, before, after string) Result {
	return trimPageWithSize(rows, before, after, PageSize)
}

func trimPageWithSize[T any](rows *[]T, before, after string, pageSize int) Result {
	orig := len(*rows)
	var hasPrev, hasNext bool

	if before != "" {
		if orig > pageSize {
			*rows = (*rows)[1:]
			hasPrev = true
		}
		hasNext = true
	} else {
		if orig > pageSize {
			*rows = (*rows)[:pageSize]
			hasNext = true
		}
		hasPrev = after != ""
	}

	return Result{HasPrev: hasPrev, HasNext: hasNext}
}

// Direction indicates the pagination direction.
type Direction int

const (
	Forward  Direction = iota // Default: sort ascending, use "gt" for cursor
	Backward                  // Sort descending, use "lt" for cursor
)

// KeysetConfig holds the result of configuring keyset pagination.
type KeysetConfig struct {
	Direction Direction
	SortOrder int // 1 for ascending, -1 for descending
	Cursor    *wafflemongo.Cursor
}

// ConfigureKeyset determines pagination direction and decodes the cursor.
// An undecodable cursor is ignored and yields the first page.
func ConfigureKeyset(before, after string) KeysetConfig {
	cfg := KeysetConfig{
		Direction: Forward,
		SortOrder: 1,
	}

	if before != "" {
		cfg.Direction = Backward
		cfg.SortOrder = -1
		if c, ok := wafflemongo.DecodeCursor(before); ok {
			cfg.Cursor = &c
		}
	} else if after != "" {
		if c, ok := wafflemongo.DecodeCursor(after); ok {
			cfg.Cursor = &c
		}
	}

	return cfg
}

// ApplyToFind configures FindOptions with sort and limit for keyset pagination.
func (cfg KeysetConfig) ApplyToFind(find *options.FindOptions, sortField string) {
	find.SetSort(bson.D{
		{Key: sortField, Value: cfg.SortOrder},
		{Key: "_id", Value: cfg.SortOrder},
	}).SetLimit(LimitPlusOne())
}

// KeysetWindow returns the cursor condition for the query filter.
// Returns nil if no cursor is set.
func (cfg KeysetConfig) KeysetWindow(sortField string) bson.M {
	if cfg.Cursor == nil {
		return nil
	}
	dir := "gt"
	if cfg.Direction == Backward {
		dir = "lt"
	}
	return wafflemongo.KeysetWindow(sortField, dir, cfg.Cursor.CI, cfg.Cursor.ID)
}

// Reverse reverses a slice in place. Use this after fetching results
// when paging backwards to restore ascending order.
func Reverse[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// Page is one window of a keyset-paged list as returned to clients. Pass
// PrevCursor as ?before= and NextCursor as ?after= to move.
type Page[T any] struct {
	Items      []T    `json:"items"`
	HasPrev    bool   `json:"has_prev"`
	HasNext    bool   `json:"has_next"`
	PrevCursor string `json:"prev_cursor,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NewPage trims rows (fetched with ApplyToFind) into a Page, restoring
// ascending order when paging backwards. keyFn extracts the folded sort
// key and idFn the ObjectID of an item.
func NewPage[T any](rows []T, before, after string, keyFn func(T) string, idFn func(T) primitive.ObjectID) Page[T] {
	res := TrimPage(&rows, before, after)
	if before != "" {
		Reverse(rows)
	}
	p := Page[T]{Items: rows, HasPrev: res.HasPrev, HasNext: res.HasNext}
	if len(rows) > 0 {
		first, last := rows[0], rows[len(rows)-1]
		if p.HasPrev {
			p.PrevCursor = wafflemongo.EncodeCursor(keyFn(first), idFn(first))
		}
		if p.HasNext {
			p.NextCursor = wafflemongo.EncodeCursor(keyFn(last), idFn(last))
		}
	}
	return p
}
