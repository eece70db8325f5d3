package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/errors"
)

const dayLayout = "2006-01-02"

// ParseRange reads the start_date/end_date query pair. Both empty means no
// filter; a lone bound, a malformed day or an inverted range is an
// *errors.ErrValidation.
func ParseRange(start, end string) (*crm.DateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, &errors.ErrValidation{Field: "start_date", Err: fmt.Errorf("start_date and end_date must be given together")}
	}

	s, err := time.Parse(dayLayout, start)
	if err != nil {
		return nil, &errors.ErrValidation{Field: "start_date", Err: fmt.Errorf("expected YYYY-MM-DD")}
	}
	e, err := time.Parse(dayLayout, end)
	if err != nil {
		return nil, &errors.ErrValidation{Field: "end_date", Err: fmt.Errorf("expected YYYY-MM-DD")}
	}
	if e.Before(s) {
		return nil, &errors.ErrValidation{Field: "end_date", Err: fmt.Errorf("must not be before start_date")}
	}
	return &crm.DateRange{Start: s, End: e}, nil
}
