package h3mapper

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

// parentOf returns the ancestor of a hexbin cell id at res. A cell already at
// res is its own parent.
func parentOf(cell string, res int) (h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("parse hexbin cell %q: %w", cell, err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid hexbin cell %q", cell)
	}
	switch cur := c.Resolution(); {
	case res > cur:
		return 0, fmt.Errorf("cannot coarsen cell at res %d to finer res %d", cur, res)
	case res == cur:
		return c, nil
	}
	p, err := c.Parent(res)
	if err != nil {
		return 0, fmt.Errorf("h3 parent: %w", err)
	}
	return p, nil
}
