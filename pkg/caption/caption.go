// Package caption models the two optional text lines printed under the photo.
package caption

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// CounterLimit is the advisory length shown next to each input. It is not enforced.
	CounterLimit = 25
	// AlertThreshold is the length above which the counter switches to the alert colour.
	AlertThreshold = 20

	DonorPrefix    = "De: "
	ReceiverPrefix = "Para: "
)

// Counter colours.
const (
	NormalColor = "#6c757d"
	AlertColor  = "#dc3545"
)

// Caption holds the donor and receiver strings as typed by the user.
type Caption struct {
	Donor    string `json:"de"`
	Receiver string `json:"para"`
}

// Clean returns the string as it is rendered: NFC-normalised and trimmed.
func Clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Lines returns the lines to draw, in order. Empty fields are omitted entirely.
func (c Caption) Lines() []string {
	var lines []string
	if d := Clean(c.Donor); d != "" {
		lines = append(lines, DonorPrefix+d)
	}
	if r := Clean(c.Receiver); r != "" {
		lines = append(lines, ReceiverPrefix+r)
	}
	return lines
}

// Trimmed returns a copy with both fields cleaned.
func (c Caption) Trimmed() Caption {
	return Caption{Donor: Clean(c.Donor), Receiver: Clean(c.Receiver)}
}

// Empty reports whether neither line would be drawn.
func (c Caption) Empty() bool {
	return len(c.Lines()) == 0
}

// CounterState is the advisory character counter shown beside an input.
type CounterState struct {
	Count int    `json:"count"`
	Text  string `json:"text"`
	Alert bool   `json:"alert"`
	Color string `json:"color"`
}

// Counter computes the counter for raw input text.
func Counter(text string) CounterState {
	n := Length(text)
	c := CounterState{
		Count: n,
		Text:  fmt.Sprintf("%d/%d", n, CounterLimit),
		Alert: n > AlertThreshold,
		Color: NormalColor,
	}
	if c.Alert {
		c.Color = AlertColor
	}
	return c
}

// Length counts characters after NFC normalisation, so a precomposed and a
// decomposed accent count the same.
func Length(text string) int {
	return utf8.RuneCountInString(norm.NFC.String(text))
}
