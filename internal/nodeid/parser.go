// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package nodeid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// segmentRegex matches a single segment, e.g. `hero`, `tile-3` or `hero[1]`.
var segmentRegex = regexp.MustCompile(`^([a-zA-Z0-9_-]+)(?:\[(\d+)\])?$`)

// isValidSegmentName rejects names made only of separators.
func isValidSegmentName(name string) bool {
	return strings.Trim(name, "-_") != ""
}

// Parse creates a new Address struct by parsing its canonical string representation.
func Parse(rawID string) (*Address, error) {
	if rawID == "" {
		return nil, errors.New("identifier cannot be empty")
	}

	addr := &Address{}
	for _, segmentStr := range strings.Split(rawID, ".") {
		if segmentStr == "" {
			return nil, fmt.Errorf("identifier %q contains an empty segment", rawID)
		}

		matches := segmentRegex.FindStringSubmatch(segmentStr)
		if matches == nil {
			return nil, fmt.Errorf("invalid path segment format: %q", segmentStr)
		}

		name := matches[1]
		if !isValidSegmentName(name) {
			return nil, fmt.Errorf("invalid segment name: %q", name)
		}

		segment := NewPathSegment(name)
		if matches[2] != "" {
			index, err := strconv.Atoi(matches[2])
			if err != nil {
				return nil, fmt.Errorf("invalid index in segment %q: %w", segmentStr, err)
			}
			segment.Index = index
		}
		addr.Path = append(addr.Path, segment)
	}

	return addr, nil
}

// ParseSplit parses rawID and requires it to address a split node or one of
// its handles.
func ParseSplit(rawID string) (*Address, error) {
	addr, err := Parse(rawID)
	if err != nil {
		return nil, err
	}
	if addr.Path[0].Name != Kind || len(addr.Path) < 2 || len(addr.Path) > 3 {
		return nil, fmt.Errorf("%q is not a %s address: want %s.<name> or %s.<name>.<handle>", rawID, Kind, Kind, Kind)
	}
	return addr, nil
}
