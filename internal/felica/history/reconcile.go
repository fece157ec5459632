package history

import (
	"bytes"
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/zesik/felicatool/internal/felica/record"
)

// Entry is a decoded history record annotated for the current session.
type Entry struct {
	Record record.History
	// New is set for records appended to the card log in this session.
	New bool
	// Expense is the balance drop from the previous record, nil when the
	// previous record is unknown.
	Expense *int
}

type Session struct {
	CardID string
	// Entries are in chronological order, oldest first.
	Entries  []Entry
	NewCount int
	// Discontinuity is set when no record of the window matched the last
	// logged record.
	Discontinuity bool
}

// Reconciler merges history windows read from a card into the card's log.
type Reconciler struct {
	store   *Store
	decoder *record.Decoder
}

func NewReconciler(store *Store, decoder *record.Decoder) *Reconciler {
	return &Reconciler{store: store, decoder: decoder}
}

// Sync takes the history blocks of a card as read from it, most recent
// first, and appends the ones the card log does not know yet. The returned
// session covers every used block of the window.
//
// A nil session with a nil error means the window held no used block and
// the log was left untouched.
func (r *Reconciler) Sync(ctx context.Context, cardID string, mostRecentFirst [][]byte) (*Session, error) {
	window := usedChronological(mostRecentFirst)
	if len(window) == 0 {
		log.Infof("card %s has no history records", cardID)
		return nil, nil
	}

	unlock, err := r.store.lock(ctx, cardID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	lines, err := r.store.tail(cardID, len(window)+1)
	if err != nil {
		return nil, err
	}

	newCount, overlap := findOverlap(window, lines)
	// an empty log is a first presentation, not a gap
	discontinuity := !overlap && len(lines) > 0

	if newCount == 0 {
		log.Infof("no new records found for card %s", cardID)
	} else {
		log.Infof("storing %d new record(s) for card %s", newCount, cardID)
		if discontinuity {
			log.Infof("stored records and card records of %s are not continuous", cardID)
		}
		if err := r.store.appendBlocks(cardID, window[len(window)-newCount:], discontinuity); err != nil {
			return nil, err
		}
	}

	var baseline *record.History
	if overlap {
		baseline = r.baseline(lines, len(window)-newCount)
	}

	return &Session{
		CardID:        cardID,
		Entries:       r.annotate(window, newCount, baseline),
		NewCount:      newCount,
		Discontinuity: discontinuity,
	}, nil
}

// usedChronological reverses the card order and drops unused slots. Blocks
// of the wrong size never reach the log.
func usedChronological(mostRecentFirst [][]byte) [][]byte {
	window := make([][]byte, 0, len(mostRecentFirst))
	for i := len(mostRecentFirst) - 1; i >= 0; i-- {
		b := mostRecentFirst[i]
		if len(b) == 0 || b[0] == 0 {
			continue
		}
		if len(b) != record.BlockSize {
			log.Warnf("skipping history block of %d bytes: %s", len(b), FormatLine(b))
			continue
		}
		window = append(window, b)
	}
	return window
}

// findOverlap looks for the last logged record in the window. Everything
// after the first match is new. Without a match the whole window is new.
func findOverlap(window [][]byte, lines []string) (newCount int, overlap bool) {
	if len(lines) == 0 {
		return len(window), false
	}
	last, err := ParseLine(lines[len(lines)-1])
	if err != nil {
		return len(window), false
	}
	for i, b := range window {
		if bytes.Equal(b, last) {
			return len(window) - i - 1, true
		}
	}
	return len(window), false
}

// baseline decodes the logged record right before the known part of the
// window. known counts the window records already in the log, the match
// included, which are the last known lines of the tail.
func (r *Reconciler) baseline(lines []string, known int) *record.History {
	idx := len(lines) - known - 1
	if idx < 0 || lines[idx] == "" {
		return nil
	}
	raw, err := ParseLine(lines[idx])
	if err != nil {
		log.Warnf("unable to parse baseline record: %s", err)
		return nil
	}
	h, err := r.decoder.DecodeHistory(raw)
	if err != nil {
		log.Warnf("unable to decode baseline record: %s", err)
		return nil
	}
	return &h
}

// annotate decodes the window and derives the new flags and expenses. The
// baseline only serves as the predecessor of the oldest record.
func (r *Reconciler) annotate(window [][]byte, newCount int, baseline *record.History) []Entry {
	entries := make([]Entry, 0, len(window))
	prev := baseline
	for i, raw := range window {
		h, err := r.decoder.DecodeHistory(raw)
		if err != nil {
			log.Warnf("skipping history record %s: %s", FormatLine(raw), err)
			continue
		}

		e := Entry{Record: h, New: i >= len(window)-newCount}
		if prev != nil {
			expense := prev.Balance - h.Balance
			e.Expense = &expense
		}
		entries = append(entries, e)
		prev = &h
	}
	return entries
}
