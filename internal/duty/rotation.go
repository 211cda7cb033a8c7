package duty

import (
	"errors"
	"time"

	"gstaldergeist/internal/collection"
)

type MemberID = collection.MemberID

// referenceMonday anchors the continuous week count (1970-01-05 was a Monday).
var referenceMonday = collection.NewDate(1970, time.January, 5)

// Rotation maps a date to the member on duty for the ISO week containing it.
//
// Weeks are counted continuously from a fixed Monday instead of using the
// week-of-year, so the member always changes at the 52/53 -> 1 boundary. The
// same date can therefore map to another member than a week-of-year rotation
// would. A household moving over from one lines up by choosing offset: each
// step of offset hands the current week to the next member in the list.
type Rotation struct {
	members []MemberID
	offset  int
	loc     *time.Location
}

func NewRotation(members []MemberID, offset int, loc *time.Location) (*Rotation, error) {
	if len(members) == 0 {
		return nil, errors.New("rotation needs at least one member")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Rotation{members: append([]MemberID(nil), members...), offset: offset, loc: loc}, nil
}

// MemberFor returns the member on duty for the week containing t (in the rotation's zone).
func (r *Rotation) MemberFor(t time.Time) MemberID {
	return r.MemberOn(collection.DateOf(t.In(r.loc)))
}

// MemberOn returns the member on duty for the week containing d.
func (r *Rotation) MemberOn(d collection.Date) MemberID {
	n := len(r.members)
	idx := (weekIndex(d) + r.offset) % n
	if idx < 0 {
		idx += n
	}
	return r.members[idx]
}

func (r *Rotation) Today(now time.Time) MemberID    { return r.MemberFor(now) }
func (r *Rotation) Tomorrow(now time.Time) MemberID { return r.MemberFor(now.In(r.loc).AddDate(0, 0, 1)) }

func (r *Rotation) Members() []MemberID { return append([]MemberID(nil), r.members...) }

// weekIndex counts Monday-start weeks between referenceMonday and d (floor division).
func weekIndex(d collection.Date) int {
	days := int(d.In(time.UTC).Sub(referenceMonday.In(time.UTC)).Hours() / 24)
	if days < 0 {
		return -((-days + 6) / 7)
	}
	return days / 7
}
