package invoice

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var invoiceNoPattern = regexp.MustCompile(`^INV-(\d{4})-(\d+)$`)

// NextInvoiceNumber returns the number following last for the year of now.
// The sequence restarts at 0001 on a new year or when last is empty or malformed.
func NextInvoiceNumber(last string, now time.Time) string {
	year := now.Year()
	first := fmt.Sprintf("INV-%d-%04d", year, 1)

	m := invoiceNoPattern.FindStringSubmatch(last)
	if m == nil {
		return first
	}
	lastYear, err := strconv.Atoi(m[1])
	if err != nil || lastYear != year {
		return first
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return first
	}
	return fmt.Sprintf("INV-%d-%04d", year, seq+1)
}

// Numberer issues invoice numbers against an injectable clock.
type Numberer struct {
	now func() time.Time
}

func NewNumberer(now func() time.Time) *Numberer {
	if now == nil {
		now = time.Now
	}
	return &Numberer{now: now}
}

func (n *Numberer) Next(last string) string {
	return NextInvoiceNumber(last, n.now())
}
