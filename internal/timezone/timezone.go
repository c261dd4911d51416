// Package timezone holds the canonical catalog of timezone names users may
// pick from. It's the IANA zone.tab set plus UTC, GMT and the US/ and
// Canada/ aliases people still expect to find in a drop-down.
package timezone

import (
	_ "embed"
	"slices"
	"strings"
	"time"
	_ "time/tzdata" // every catalog entry must load even on hosts without /usr/share/zoneinfo
)

//go:embed common.txt
var commonFile string

// names is sorted; built once at package init.
var names = parse(commonFile)

func parse(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	slices.Sort(out)
	return out
}

// All returns a copy of the catalog, sorted alphabetically.
func All() []string {
	return slices.Clone(names)
}

// Valid reports whether name is in the catalog. Matching is exact: "utc"
// or "europe/london" are rejected.
func Valid(name string) bool {
	_, found := slices.BinarySearch(names, name)
	return found
}

// Location loads the *time.Location for a catalog entry.
func Location(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}
