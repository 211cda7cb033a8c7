package collection

import (
	"errors"
	"sort"
	"strconv"
)

// ErrTransientData marks a failed or timed out collection fetch. Callers retry later.
var ErrTransientData = errors.New("collection data unavailable")

// Item is a duty item tag such as a waste type.
type Item string

const (
	ItemNormal    Item = "Normal"
	ItemBio       Item = "Bio"
	ItemCardboard Item = "Cardboard"
	ItemPaper     Item = "Paper"
	ItemWeRecycle Item = "WeRecycle"
)

// MemberID is the Telegram user id of a household member.
type MemberID int64

func (id MemberID) String() string { return strconv.FormatInt(int64(id), 10) }

type Member struct {
	ID   MemberID `json:"id"`
	Name string   `json:"name"`
}

// Schedule is the merged result of one fetch. It is built fresh per fetch
// and never mutated afterwards.
type Schedule struct {
	// Dates never holds an empty list.
	Dates   map[Date][]Item
	Current Member
	Next    Member
}

// ItemsOn returns the items due on d (nil when nothing is due).
func (s Schedule) ItemsOn(d Date) []Item {
	return s.Dates[d]
}

// Days returns the dates with items, ascending.
func (s Schedule) Days() []Date {
	out := make([]Date, 0, len(s.Dates))
	for d := range s.Dates {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (s Schedule) IsEmpty() bool { return len(s.Dates) == 0 }
