package chart

import (
	"sort"
	"time"

	"github.com/mohammed-shakir/noaa-weather-explorer/internal/core/model"
)

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthName returns the short English name of month m (1..12).
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return monthNames[m-1]
}

// Point is one line-chart sample: the mean of all rows sharing a date.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Count int       `json:"count"`
}

// AggregateByDate merges rows by calendar date. Value is the mean of the
// row values and Count sums the contributing station counts, a row without a
// count contributing one.
func AggregateByDate(rows []model.RawObservation) []Point {
	type acc struct {
		sum   float64
		n     int
		count int
	}
	byDay := make(map[time.Time]*acc, len(rows))
	for _, r := range rows {
		d := model.Date(r.Date.Year(), r.Date.Month(), r.Date.Day())
		a := byDay[d]
		if a == nil {
			a = &acc{}
			byDay[d] = a
		}
		a.sum += r.Value
		a.n++
		if r.StationCount > 0 {
			a.count += r.StationCount
		} else {
			a.count++
		}
	}
	out := make([]Point, 0, len(byDay))
	for d, a := range byDay {
		out = append(out, Point{Date: d, Value: a.sum / float64(a.n), Count: a.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// MonthBar is the mean of every row of one calendar month.
type MonthBar struct {
	Month int     `json:"month"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// AggregateByMonth groups rows by their month field. Months without rows are
// omitted.
func AggregateByMonth(rows []model.RawObservation) []MonthBar {
	var sums [13]float64
	var counts [13]int
	for _, r := range rows {
		if r.Month < 1 || r.Month > 12 {
			continue
		}
		sums[r.Month] += r.Value
		counts[r.Month]++
	}
	var out []MonthBar
	for m := 1; m <= 12; m++ {
		if counts[m] == 0 {
			continue
		}
		out = append(out, MonthBar{Month: m, Name: MonthName(m), Value: sums[m] / float64(counts[m]), Count: counts[m]})
	}
	return out
}

// HeatCell is one month x day cell. NoData cells carry no value. Count is
// the number of rows averaged; Stations sums their station counts.
type HeatCell struct {
	Month    int     `json:"month"`
	Day      int     `json:"day"`
	Value    float64 `json:"value"`
	Count    int     `json:"count"`
	Stations int     `json:"stations"`
	NoData   bool    `json:"no_data"`
}

const (
	GridMonths = 12
	GridDays   = 31
	GridCells  = GridMonths * GridDays
)

// HeatmapGrid builds the dense 12x31 grid in month-major order. Cells for
// impossible dates (Feb 30) and dates without rows are flagged NoData.
func HeatmapGrid(rows []model.RawObservation) []HeatCell {
	var sums [GridMonths][GridDays]float64
	var counts, stations [GridMonths][GridDays]int
	for _, r := range rows {
		if r.Month < 1 || r.Month > GridMonths || r.Day < 1 || r.Day > GridDays {
			continue
		}
		sums[r.Month-1][r.Day-1] += r.Value
		counts[r.Month-1][r.Day-1]++
		stations[r.Month-1][r.Day-1] += max(r.StationCount, 1)
	}
	out := make([]HeatCell, 0, GridCells)
	for m := 0; m < GridMonths; m++ {
		for d := 0; d < GridDays; d++ {
			c := HeatCell{Month: m + 1, Day: d + 1, Count: counts[m][d], Stations: stations[m][d]}
			if c.Count == 0 {
				c.NoData = true
			} else {
				c.Value = sums[m][d] / float64(c.Count)
			}
			out = append(out, c)
		}
	}
	return out
}
