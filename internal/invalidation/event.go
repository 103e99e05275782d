// Package invalidation describes dataset refresh notifications published by
// the ingestion pipeline.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const DatasetGHCND = "ghcn-daily"

// Event announces that the archive was rewritten for the listed years.
// Revision increases monotonically per dataset; redelivered or reordered
// events with an older revision are ignored.
type Event struct {
	Version  int       `json:"version"`
	Dataset  string    `json:"dataset"`
	Revision uint64    `json:"revision"`
	Years    []int     `json:"years"`
	TS       time.Time `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if strings.TrimSpace(e.Dataset) == "" {
		return fmt.Errorf("dataset is required")
	}
	if e.Revision == 0 {
		return fmt.Errorf("revision must be positive")
	}
	if len(e.Years) == 0 {
		return fmt.Errorf("at least one year is required")
	}
	for _, y := range e.Years {
		if y < 1750 || y > 9999 {
			return fmt.Errorf("year %d out of range", y)
		}
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
