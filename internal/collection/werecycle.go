package collection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const (
	DefaultWeRecyclePage   = "https://www.werecycle.ch/en/abholdaten/"
	DefaultWeRecycleRegion = "19"
)

var (
	pdfLinkRe = regexp.MustCompile(`href="([^"]+\d+\.pdf)"`)
	// "12.3. MO 17 19-21 " style rows: date, weekday abbreviation, optional region list.
	pickupRowRe = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.\s+([A-Z]{2})\s*([\d\s+\-]+)?\s+`)
)

// WeRecycle scrapes pickup dates for one region from the PDFs linked on the
// WeRecycle schedule page. The PDFs carry day and month only; the year is
// taken from the fetch window.
type WeRecycle struct {
	PageURL string
	Region  string
	Client  *http.Client
	// PDFText extracts plain text from a PDF. Defaults to the ledongthuc/pdf reader.
	PDFText func(b []byte) (string, error)
}

func (w *WeRecycle) Name() string { return "werecycle" }

func (w *WeRecycle) Fetch(ctx context.Context, from, to Date) (map[Date][]Item, error) {
	page := strings.TrimSpace(w.PageURL)
	if page == "" {
		page = DefaultWeRecyclePage
	}
	region := strings.TrimSpace(w.Region)
	if region == "" {
		region = DefaultWeRecycleRegion
	}
	extract := w.PDFText
	if extract == nil {
		extract = pdfPlainText
	}

	body, err := get(ctx, w.Client, page)
	if err != nil {
		return nil, err
	}
	links, err := pdfLinks(page, body)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("no pickup pdf linked on %s", page)
	}

	out := map[Date][]Item{}
	for _, link := range links {
		b, err := get(ctx, w.Client, link)
		if err != nil {
			return nil, err
		}
		text, err := extract(b)
		if err != nil {
			return nil, fmt.Errorf("read pdf %s: %w", link, err)
		}
		for _, d := range pickupDates(text, region, from, to) {
			out[d] = append(out[d], ItemWeRecycle)
		}
	}
	return out, nil
}

// pdfLinks returns absolute pdf links found in page, resolved against pageURL.
func pdfLinks(pageURL string, page []byte) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range pdfLinkRe.FindAllSubmatch(page, -1) {
		ref, err := url.Parse(string(m[1]))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	return out, nil
}

// pickupDates returns the dates listed for region. Each row is tried in the
// years of the window so a December..January window resolves correctly;
// dates outside the window are dropped.
func pickupDates(text, region string, from, to Date) []Date {
	var out []Date
	for _, m := range pickupRowRe.FindAllStringSubmatch(text, -1) {
		if !strings.Contains(m[4], region) {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		for y := from.Year; y <= to.Year; y++ {
			d := NewDate(y, time.Month(month), day)
			if d.Day != day {
				continue // e.g. 31.4. rolled over
			}
			if d.Within(from, to) {
				out = append(out, d)
			}
		}
	}
	return out
}

func pdfPlainText(b []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", err
	}
	tr, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, tr); err != nil {
		return "", err
	}
	return buf.String(), nil
}
