package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"git.unix.lgbt/diamondburned/bgrun/bgrun"
	"github.com/diamondburned/backwardio"
	"github.com/pkg/errors"
)

// Reader parses journals written by Writer from the bottom up, so the newest
// entry is read first.
type Reader struct {
	b *backwardio.Scanner
}

// NewReader creates a new journal reader.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{backwardio.NewScanner(r)}
}

// Entry is an event read back from a journal.
type Entry struct {
	Time  time.Time
	Event bgrun.Event
}

// Read reads the previous entry, starting from the end of the journal. Blank
// lines are skipped. An EOF error is returned once the journal has been fully
// consumed.
func (r *Reader) Read() (Entry, error) {
	var line []byte
	var err error

	for len(line) == 0 {
		line, err = r.b.ReadUntil('\n')
		if err != nil {
			return Entry{}, err
		}
	}

	var raw struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode JSON")
	}

	ev := bgrun.NewEvent(raw.Type)
	if ev == nil {
		return Entry{}, fmt.Errorf("unknown event %q", raw.Type)
	}

	if err := json.Unmarshal(raw.Data, ev); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode event data")
	}

	return Entry{Time: raw.Time, Event: ev}, nil
}

// ReadLast reads the last n entries of the journal file at path, oldest first.
func ReadLast(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open journal")
	}
	defer f.Close()

	r := NewReader(f)
	entries := make([]Entry, 0, n)

	for len(entries) < n {
		entry, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		entries = append(entries, entry)
	}

	// Flip the entries so the oldest comes first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}
