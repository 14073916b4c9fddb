package model

import (
	"strconv"
	"time"
)

// Company is a company as returned by the companies API.
type Company struct {
	WikidataID       string            `json:"wikidataId"`
	Name             string            `json:"name"`
	ReportingPeriods []ReportingPeriod `json:"reportingPeriods"`
}

// ReportingPeriod is one reporting window of a company.
type ReportingPeriod struct {
	StartDate string     `json:"startDate"`
	EndDate   string     `json:"endDate"`
	Emissions *Emissions `json:"emissions"`
}

// Emissions holds the reported emissions of a period. Any level may be nil.
type Emissions struct {
	Scope1 *Scope1 `json:"scope1"`
	Scope2 *Scope2 `json:"scope2"`
	Scope3 *Scope3 `json:"scope3"`
}

// Scope1 holds direct emissions.
type Scope1 struct {
	Total Number `json:"total"`
}

// Scope2 holds indirect energy emissions by accounting method.
type Scope2 struct {
	MB      Number `json:"mb"`
	LB      Number `json:"lb"`
	Unknown Number `json:"unknown"`
}

// Scope3 holds value-chain emissions.
type Scope3 struct {
	StatedTotalEmissions     *StatedTotal `json:"statedTotalEmissions"`
	CalculatedTotalEmissions Number       `json:"calculatedTotalEmissions"`
	Categories               []Category   `json:"categories"`
}

// StatedTotal is a total as stated in the report.
type StatedTotal struct {
	Total Number `json:"total"`
}

// Category is one GHG Protocol scope 3 category (1-16).
type Category struct {
	Category int    `json:"category"`
	Total    Number `json:"total"`
}

// dateLayouts are tried in order when parsing period dates.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"}

// Year returns the reporting year, taken from the end date.
func (p ReportingPeriod) Year() (int, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, p.EndDate); err == nil {
			return t.Year(), true
		}
	}
	// Fall back to a leading YYYY.
	if len(p.EndDate) >= 4 {
		if y, err := strconv.Atoi(p.EndDate[:4]); err == nil {
			return y, true
		}
	}
	return 0, false
}

// PeriodForYear returns the reporting period ending in year. When several
// match, the one with the latest end date wins.
func (c *Company) PeriodForYear(year int) *ReportingPeriod {
	var best *ReportingPeriod
	for i := range c.ReportingPeriods {
		p := &c.ReportingPeriods[i]
		y, ok := p.Year()
		if !ok || y != year {
			continue
		}
		if best == nil || p.EndDate > best.EndDate {
			best = p
		}
	}
	return best
}

// Years returns the distinct reporting years of the company.
func (c *Company) Years() []int {
	seen := make(map[int]bool, len(c.ReportingPeriods))
	var years []int
	for _, p := range c.ReportingPeriods {
		y, ok := p.Year()
		if !ok || seen[y] {
			continue
		}
		seen[y] = true
		years = append(years, y)
	}
	return years
}

// CategoryTotal returns the total of scope 3 category n, or nil.
func (s *Scope3) CategoryTotal(n int) *float64 {
	if s == nil {
		return nil
	}
	for _, c := range s.Categories {
		if c.Category == n {
			return c.Total.Ptr()
		}
	}
	return nil
}
