package duty

import (
	"testing"
	"time"

	"gstaldergeist/internal/collection"
)

func TestRotation_Deterministic(t *testing.T) {
	t.Parallel()
	r, err := NewRotation([]MemberID{10, 20, 30}, 1, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	d := collection.NewDate(2026, time.January, 1)
	for i := 0; i < 400; i++ {
		day := d.AddDays(i)
		first := r.MemberOn(day)
		for j := 0; j < 3; j++ {
			if got := r.MemberOn(day); got != first {
				t.Fatalf("%s: member changed between calls: %d vs %d", day, first, got)
			}
		}
	}
}

func TestRotation_OffsetAlignsWithExistingRotation(t *testing.T) {
	t.Parallel()
	members := []MemberID{10, 20, 30}
	base, err := NewRotation(members, 0, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	thisWeek := collection.NewDate(2026, time.October, 14)

	// The household already has 30 on duty this week.
	var offset int
	for offset = 0; offset < len(members); offset++ {
		r, _ := NewRotation(members, offset, time.UTC)
		if r.MemberOn(thisWeek) == 30 {
			break
		}
	}
	aligned, _ := NewRotation(members, offset, time.UTC)
	if got := aligned.MemberOn(thisWeek); got != 30 {
		t.Fatalf("no offset puts 30 on duty, got %d", got)
	}
	if aligned.MemberOn(thisWeek.AddDays(7)) != 10 || aligned.MemberOn(thisWeek.AddDays(14)) != 20 {
		t.Fatal("aligned rotation does not continue in list order")
	}

	// One step of offset equals one week later.
	shifted, _ := NewRotation(members, 1, time.UTC)
	for i := 0; i < 60; i++ {
		d := thisWeek.AddDays(7 * i)
		if shifted.MemberOn(d) != base.MemberOn(d.AddDays(7)) {
			t.Fatalf("%s: offset 1 = %d, base a week later = %d", d, shifted.MemberOn(d), base.MemberOn(d.AddDays(7)))
		}
	}
}

func TestRotation_ConsecutiveWeeksDiffer(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		members []MemberID
		start   collection.Date
	}{
		{"two members", []MemberID{1, 2}, collection.NewDate(2026, time.October, 12)},
		{"three members", []MemberID{1, 2, 3}, collection.NewDate(2026, time.October, 12)},
		{"year boundary", []MemberID{1, 2, 3}, collection.NewDate(2026, time.December, 21)},
		{"53-week year", []MemberID{1, 2}, collection.NewDate(2020, time.December, 21)},
		{"before reference", []MemberID{1, 2, 3}, collection.NewDate(1969, time.December, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewRotation(tc.members, 0, time.UTC)
			if err != nil {
				t.Fatal(err)
			}
			for w := 0; w < 8; w++ {
				monday := tc.start.AddDays(7 * w)
				if a, b := r.MemberOn(monday), r.MemberOn(monday.AddDays(7)); a == b {
					t.Fatalf("weeks of %s and %s share member %d", monday, monday.AddDays(7), a)
				}
			}
		})
	}
}

func TestRotation_ChangesOnMonday(t *testing.T) {
	t.Parallel()
	r, err := NewRotation([]MemberID{1, 2, 3}, 1, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	monday := collection.NewDate(2026, time.October, 12)
	for i := 1; i < 7; i++ {
		if r.MemberOn(monday.AddDays(i)) != r.MemberOn(monday) {
			t.Fatalf("member changed within the week on %s", monday.AddDays(i))
		}
	}
	sunday := time.Date(2026, time.October, 18, 18, 0, 0, 0, time.UTC)
	if r.Today(sunday) == r.Tomorrow(sunday) {
		t.Fatal("Sunday and Monday share a member")
	}
}

func TestRotation_UsesLocation(t *testing.T) {
	t.Parallel()
	zurich, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	r, err := NewRotation([]MemberID{1, 2}, 0, zurich)
	if err != nil {
		t.Fatal(err)
	}
	// 23:30 UTC on Sunday is already Monday in Zurich.
	late := time.Date(2026, time.October, 18, 23, 30, 0, 0, time.UTC)
	if got, want := r.MemberFor(late), r.MemberOn(collection.NewDate(2026, time.October, 19)); got != want {
		t.Fatalf("MemberFor = %d, want %d", got, want)
	}
}

func TestNewRotation_Empty(t *testing.T) {
	t.Parallel()
	if _, err := NewRotation(nil, 0, nil); err == nil {
		t.Fatal("expected error")
	}
}
