package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultAdliswilURL = "https://adliswil.entsorglos.swiss/backend/widget/calendar-dates"

// adliswilTypes maps the municipal waste_type codes to items. Other codes are ignored.
var adliswilTypes = map[int]Item{
	1: ItemNormal,
	2: ItemBio,
	3: ItemCardboard,
	4: ItemPaper,
}

// Adliswil reads the monthly calendar endpoint of the Adliswil waste widget.
type Adliswil struct {
	BaseURL string
	Client  *http.Client
	// Location converts event timestamps to civil dates.
	Location *time.Location
}

func (a *Adliswil) Name() string { return "adliswil" }

type adliswilResponse struct {
	Results struct {
		Events []struct {
			Date      time.Time `json:"date"`
			WasteType int       `json:"waste_type"`
		} `json:"events"`
	} `json:"results"`
}

func (a *Adliswil) Fetch(ctx context.Context, from, to Date) (map[Date][]Item, error) {
	base := strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if base == "" {
		base = DefaultAdliswilURL
	}
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}

	out := map[Date][]Item{}
	for _, m := range monthsBetween(from, to) {
		url := fmt.Sprintf("%s/%02d-%04d/", base, int(m.Month), m.Year)
		body, err := get(ctx, a.Client, url)
		if err != nil {
			return nil, err
		}
		var resp adliswilResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode %s: %w", url, err)
		}
		for _, ev := range resp.Results.Events {
			item, ok := adliswilTypes[ev.WasteType]
			if !ok {
				continue
			}
			d := DateOf(ev.Date.In(loc))
			out[d] = append(out[d], item)
		}
	}
	return out, nil
}

// monthsBetween lists the first day of every month touched by from..to.
func monthsBetween(from, to Date) []Date {
	var out []Date
	for m := NewDate(from.Year, from.Month, 1); !m.After(to); m = NewDate(m.Year, m.Month+1, 1) {
		out = append(out, m)
	}
	return out
}
