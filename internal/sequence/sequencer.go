// Package sequence issues unique, monotonically increasing document numbers
// per entity kind and year.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies a numbered entity type.
type Kind string

const (
	KindRequest  Kind = "REQUEST"
	KindOrder    Kind = "ORDER"
	KindDocument Kind = "DOCUMENT"
)

// ErrUnknownKind indicates a kind without a number format.
var ErrUnknownKind = errors.New("sequence: unknown entity kind")

// CounterStore increments the last issued sequence for a (kind, year) key.
// Implementations must serialise concurrent callers on the same key: no two
// callers may ever observe the same value. Year 0 addresses the single
// global counter used for documents.
type CounterStore interface {
	NextSequence(ctx context.Context, kind Kind, year int) (int64, error)
}

// Sequencer formats issued numbers per entity kind.
type Sequencer struct {
	store CounterStore
	now   func() time.Time
}

// NewSequencer constructs a Sequencer on top of a counter store.
func NewSequencer(store CounterStore) *Sequencer {
	return &Sequencer{store: store, now: time.Now}
}

// Next returns the next raw sequence value for a kind and year.
func (s *Sequencer) Next(ctx context.Context, kind Kind, year int) (int64, error) {
	return s.store.NextSequence(ctx, kind, year)
}

// RequestNumber issues a request number, e.g. DM/NUM07/2026/.
func (s *Sequencer) RequestNumber(ctx context.Context) (string, error) {
	year := s.now().Year()
	seq, err := s.store.NextSequence(ctx, KindRequest, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DM/NUM%02d/%d/", seq, year), nil
}

// OrderNumber issues a purchase order number, e.g. BC/NUM82/DAA/DG/2026.
func (s *Sequencer) OrderNumber(ctx context.Context) (string, error) {
	year := s.now().Year()
	seq, err := s.store.NextSequence(ctx, KindOrder, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("BC/NUM%d/DAA/DG/%d", seq, year), nil
}

// DocumentNumber issues a document reference from the global counter,
// e.g. DOC/NUM000042.
func (s *Sequencer) DocumentNumber(ctx context.Context) (string, error) {
	seq, err := s.store.NextSequence(ctx, KindDocument, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DOC/NUM%06d", seq), nil
}

// Format renders an already issued sequence value for a kind. Used when the
// caller manages the counter transactionally and only needs the template.
func Format(kind Kind, seq int64, year int) (string, error) {
	switch kind {
	case KindRequest:
		return fmt.Sprintf("DM/NUM%02d/%d/", seq, year), nil
	case KindOrder:
		return fmt.Sprintf("BC/NUM%d/DAA/DG/%d", seq, year), nil
	case KindDocument:
		return fmt.Sprintf("DOC/NUM%06d", seq), nil
	default:
		return "", ErrUnknownKind
	}
}
