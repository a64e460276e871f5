package domain

import (
	"fmt"
	"strings"
	"time"
)

// CouponNullMarker is how an empty cell renders once the coupon table has
// been through a dataframe export. Codes equal to it are treated as missing.
const CouponNullMarker = "NAN"

const dateLayout = "2006-01-02"

// CouponRecord is one row of the coupon dataset.
type CouponRecord struct {
	Code         string     `json:"code"`
	Status       string     `json:"status"`
	Jurisdiction string     `json:"jurisdiction"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}

// NormalizeCouponCode canonicalizes a submitted or stored coupon code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewCouponRecord builds a record from raw cell values. It reports false
// when the code is empty or the null marker, in which case the row is skipped.
// start and end accept anything ParseDate does.
func NewCouponRecord(code, status, jurisdiction string, start, end any) (CouponRecord, bool) {
	code = NormalizeCouponCode(code)
	if code == "" || code == CouponNullMarker {
		return CouponRecord{}, false
	}
	rec := CouponRecord{
		Code:         code,
		Status:       strings.TrimSpace(status),
		Jurisdiction: strings.TrimSpace(jurisdiction),
	}
	if d, ok := ParseDate(start); ok {
		rec.StartDate = &d
	}
	if d, ok := ParseDate(end); ok {
		rec.EndDate = &d
	}
	return rec, true
}

// IsActive reports whether the record's status is "active", ignoring case.
func (r CouponRecord) IsActive() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), "active")
}

// ParseDate extracts a calendar date from a cell value. Absent, blank,
// "nan" and unparsable values yield false; it never fails, so one bad cell
// cannot stop a dataset from loading.
//
// Strings are tried as M/D/YY first and then M/D/YYYY.
func ParseDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return DateOf(v), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return DateOf(*v), true
	case string:
		return parseDateString(v)
	case fmt.Stringer:
		return parseDateString(v.String())
	default:
		return time.Time{}, false
	}
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return time.Time{}, false
	}
	for _, layout := range []string{"1/2/06", "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	return time.Time{}, false
}

// EvaluateDates checks today against the record's validity window. Absent
// bounds leave that side of the window open.
func EvaluateDates(rec CouponRecord, today time.Time) (bool, string) {
	today = DateOf(today)
	if rec.StartDate != nil && today.Before(*rec.StartDate) {
		return false, fmt.Sprintf("not yet active (starts %s)", rec.StartDate.Format(dateLayout))
	}
	if rec.EndDate != nil && today.After(*rec.EndDate) {
		return false, fmt.Sprintf("expired (ended %s)", rec.EndDate.Format(dateLayout))
	}
	return true, "Valid"
}

// CheckCoupon applies the record-level rules for a submitted code: it must
// exist, be active and be inside its date window. Any failure is a
// KindDenied error; the jurisdiction restriction is checked by the caller
// once the address has been resolved.
func CheckCoupon(records map[string]CouponRecord, code string, today time.Time) (CouponRecord, error) {
	rec, ok := records[NormalizeCouponCode(code)]
	if !ok {
		return CouponRecord{}, Denied("Coupon code not found")
	}
	if !rec.IsActive() {
		return rec, Denied(fmt.Sprintf("Coupon is not active (status: %s)", rec.Status))
	}
	if valid, reason := EvaluateDates(rec, today); !valid {
		return rec, Denied("Coupon " + reason)
	}
	return rec, nil
}
