package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var expiryLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01-2006",
	"2006-01",
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseExpiry reads an expiry date as typed by an operator: an ISO or
// day-first date, a month, or a relative phrase such as "in 6 months" or
// "next friday". The result is truncated to midnight UTC.
func ParseExpiry(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty expiry")
	}

	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}

	r, err := parser.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse expiry %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized expiry %q", text)
	}
	y, m, d := r.Time.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
