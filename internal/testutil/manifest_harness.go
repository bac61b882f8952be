// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/specialistvlad/gridsplit/internal/model"
	"github.com/stretchr/testify/require"
)

// SplitTestCase is one scenario for parsing a `split` block.
type SplitTestCase struct {
	Name string
	// HCL is the body of a `split "test" { ... }` block. Indentation is
	// stripped before parsing.
	HCL         string
	ExpectErr   bool
	ErrContains string
	Validate    func(t *testing.T, s *model.Split)
}

// unindent removes common leading whitespace from a multi-line string,
// allowing for readable, indented HCL snippets in Go tests.
func unindent(s string) string {
	lines := strings.Split(s, "\n")
	if len(lines) == 0 {
		return ""
	}

	// Remove leading/trailing empty lines that are common with multi-line literals
	if strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	if len(lines) == 0 {
		return ""
	}

	// Find the minimum indentation of non-empty lines
	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := 0
		for _, r := range line {
			if r == ' ' || r == '\t' {
				indent++
			} else {
				break
			}
		}
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}

	if minIndent <= 0 {
		return strings.Join(lines, "\n")
	}

	// Strip the common indentation from each line
	var b strings.Builder
	for i, line := range lines {
		if len(line) >= minIndent {
			b.WriteString(line[minIndent:])
		} else {
			b.WriteString(strings.TrimSpace(line))
		}
		if i < len(lines)-1 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

// RunSplitParsingTests parses each case wrapped in a `split "test"` block and
// runs its assertions.
func RunSplitParsingTests(t *testing.T, cases []SplitTestCase) {
	t.Helper()

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			fullHCL := fmt.Sprintf("split \"test\" {\n%s\n}\n", unindent(tc.HCL))

			splits, diags := model.ParseManifest("test.hcl", []byte(fullHCL))

			if tc.ExpectErr {
				require.True(t, diags.HasErrors(), "expected a parsing error, but got none")
				if tc.ErrContains != "" {
					require.Contains(t, diags.Error(), tc.ErrContains)
				}
				return
			}

			require.False(t, diags.HasErrors(), "unexpected diagnostics: %s", diags.Error())
			require.Len(t, splits, 1)
			if tc.Validate != nil {
				tc.Validate(t, splits[0])
			}
		})
	}
}
