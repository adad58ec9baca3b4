package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Entity is the capability set the generic repository and sync service need
// from a persisted record: identity plus audit timestamps.
type Entity interface {
	EntityID() uuid.UUID
	SetEntityID(id uuid.UUID)

	// Stamp sets both audit timestamps; used on insert.
	Stamp(now time.Time)
	// Touch sets the update timestamp only; used on update.
	Touch(now time.Time)

	Created() time.Time
	Updated() time.Time

	// Normalize coerces the audit timestamps to UTC. Every timestamp that
	// enters or leaves the store goes through this, whatever zone the
	// caller or driver attached.
	Normalize()
}

// Model is the embeddable base for persisted entities.
type Model struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (m *Model) EntityID() uuid.UUID      { return m.ID }
func (m *Model) SetEntityID(id uuid.UUID) { m.ID = id }

func (m *Model) Stamp(now time.Time) {
	now = now.UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
}

func (m *Model) Touch(now time.Time) {
	m.UpdatedAt = now.UTC()
}

func (m *Model) Created() time.Time { return m.CreatedAt }
func (m *Model) Updated() time.Time { return m.UpdatedAt }

func (m *Model) Normalize() {
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
}

// Doc is the capability set required from a transfer object. It mirrors
// Entity's identity so the same value can serve as the index document.
type Doc interface {
	DocID() uuid.UUID
}

// Document is the embeddable base for transfer objects. It is a separate
// type from Model so the wire shape and the storage shape can evolve
// independently; timestamps marshal as Unix seconds so search engines can
// sort on them.
type Document struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt UnixTime  `json:"created_at"`
	UpdatedAt UnixTime  `json:"updated_at"`
}

func (d Document) DocID() uuid.UUID { return d.ID }

// UnixTime is a time.Time that marshals to/from seconds since epoch.
type UnixTime struct {
	time.Time
}

func NewUnixTime(t time.Time) UnixTime {
	return UnixTime{Time: t.UTC()}
}

func (t UnixTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(t.Unix(), 10)), nil
}

func (t *UnixTime) UnmarshalJSON(b []byte) error {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		// Search engines hand numbers back as floats once they have been
		// through a generic JSON decode.
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			return err
		}
		n = int64(f)
	}
	t.Time = time.Unix(n, 0).UTC()
	return nil
}
