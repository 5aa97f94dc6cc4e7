// Package diagnostics collects non-fatal problems encountered while
// loading a feed, so that a malformed row or a missing optional file
// can be skipped (per spec: "skipped with a structured diagnostic;
// load continues") without aborting the whole load.
package diagnostics

import "fmt"

// Diagnostic is a single skipped-row or disabled-feature record.
type Diagnostic struct {
	File   string
	Row    int
	Reason string
}

func (d Diagnostic) String() string {
	if d.Row > 0 {
		return fmt.Sprintf("%s:%d: %s", d.File, d.Row, d.Reason)
	}
	return fmt.Sprintf("%s: %s", d.File, d.Reason)
}

// Collector accumulates diagnostics during a single feed load.
type Collector struct {
	items []Diagnostic
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Add(file string, row int, reason string) {
	c.items = append(c.items, Diagnostic{File: file, Row: row, Reason: reason})
}

func (c *Collector) Addf(file string, row int, format string, args ...any) {
	c.Add(file, row, fmt.Sprintf(format, args...))
}

func (c *Collector) Items() []Diagnostic {
	return c.items
}

func (c *Collector) Len() int {
	return len(c.items)
}
