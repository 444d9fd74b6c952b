package catchup

import (
	"github.com/google/uuid"

	"github.com/openvstorage/volumedriver-sub006/engine"
	"github.com/openvstorage/volumedriver-sub006/table"
)

// reserved keys the cached metadata store uses to persist the cork and
// scrub id alongside the namespace's ordinary records (spec §3: "Cork...
// exposed through the persistence adapter", "Scrub id... stored with the
// metadata store"). A leading NUL keeps them out of any plausible caller
// key space without needing a second column family just for two values.
var (
	corkKey    = []byte("\x00mds:cork")
	scrubIDKey = []byte("\x00mds:scrubid")
)

// Store is the cached metadata store the catch-up engine reads from and
// writes to: a Raw Table plus its cork/scrub-id bookkeeping.
type Store struct {
	Raw *table.Raw
}

func NewStore(raw *table.Raw) *Store { return &Store{Raw: raw} }

func (s *Store) Cork() (uuid.UUID, error) {
	return s.getUUID(corkKey)
}

func (s *Store) ScrubID() (uuid.UUID, error) {
	return s.getUUID(scrubIDKey)
}

func (s *Store) getUUID(key []byte) (uuid.UUID, error) {
	vals, err := s.Raw.MultiGet([][]byte{key})
	if err != nil {
		return uuid.UUID{}, err
	}
	if vals[0] == nil {
		return uuid.UUID{}, nil
	}
	id, err := uuid.FromBytes(vals[0])
	if err != nil {
		return uuid.UUID{}, err
	}
	return id, nil
}

// SetCork persists cork without disturbing scrub id or any data records.
func (s *Store) SetCork(cork uuid.UUID) error {
	b, _ := cork.MarshalBinary()
	return s.Raw.MultiSet([]engine.Record{{Key: corkKey, Value: b}}, false, 0)
}

func (s *Store) SetScrubID(scrubID uuid.UUID) error {
	b, _ := scrubID.MarshalBinary()
	return s.Raw.MultiSet([]engine.Record{{Key: scrubIDKey, Value: b}}, false, 0)
}

// Apply writes a TLog's records to the store and then advances the cork --
// in that order, so a crash between the two leaves the cork at the prior
// (still-consistent) value and a retry re-applies the same TLog, which is
// safe because engine writes are idempotent puts/deletes (spec §4.6: "update
// local cork after each TLog is fully applied so restart after crash is
// correct").
func (s *Store) Apply(tlog *TLog) error {
	recs := make([]engine.Record, len(tlog.Records))
	for i, r := range tlog.Records {
		recs[i] = engine.Record{Key: r.Key, Value: r.Value, Tombstone: r.Tombstone}
	}
	if len(recs) > 0 {
		if err := s.Raw.MultiSet(recs, false, 0); err != nil {
			return err
		}
	}
	return s.SetCork(tlog.Ref.Cork)
}

// ApplyRecordsOnly writes records without touching cork or scrub id, used to
// replay relocation logs, which sit outside the ordinary TLog chain.
func (s *Store) ApplyRecordsOnly(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	recs := make([]engine.Record, len(records))
	for i, r := range records {
		recs[i] = engine.Record{Key: r.Key, Value: r.Value, Tombstone: r.Tombstone}
	}
	return s.Raw.MultiSet(recs, false, 0)
}

// Clear drops and recreates the underlying family, wiping data, cork, and
// scrub id together (used before a full rebuild).
func (s *Store) Clear() error {
	return s.Raw.Clear(0)
}
