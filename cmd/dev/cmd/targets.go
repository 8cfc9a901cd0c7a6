package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// targetCounts are the targets-per-zone variants the results layout can be
// built with. 1 is the untagged default.
var targetCounts = []int{1, 2, 3, 4}

func targetTags(n int) ([]string, error) {
	if !slices.Contains(targetCounts, n) {
		return nil, fmt.Errorf("unsupported targets per zone %d (want 1..4)", n)
	}
	if n == 1 {
		return nil, nil
	}
	return []string{"vl53l5cx_targets" + strconv.Itoa(n)}, nil
}

func parseTargetCounts(s string) ([]int, error) {
	var counts []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid targets per zone %q", part)
		}
		if _, err := targetTags(n); err != nil {
			return nil, err
		}
		counts = append(counts, n)
	}
	return counts, nil
}
