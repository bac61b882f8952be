// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Split, the in-memory form of a `split` block:
//
//	split "hero" {
//	  source  = "images/hero.png"
//	  rows    = 3
//	  columns = 3
//	  format  = "png"
//	  output {
//	    dir = "out"
//	  }
//	}
//
// Why keep the declaration range?
//
// A split can fail long after parsing, when its image is decoded. Keeping the
// block's range lets later stages point the user back at the declaration.
package model

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/gridsplit/internal/geometry"
	"github.com/specialistvlad/gridsplit/internal/nodeid"
	"github.com/specialistvlad/gridsplit/internal/render"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Split is one declared split node.
type Split struct {
	Name          string
	Source        string
	Config        geometry.Config
	Format        render.Format
	Output        Output
	FSInformation *FSInfo
	DeclRange     hcl.Range
}

// Address returns the node address, split.<name>.
func (s *Split) Address() *nodeid.Address {
	return nodeid.Node(s.Name)
}

// Output says where rendered tiles are written.
type Output struct {
	Dir    string
	Bucket string
	Prefix string
}

// IsZero reports whether no destination is configured.
func (o Output) IsZero() bool {
	return o.Dir == "" && o.Bucket == ""
}

// hclSplit represents a single 'split' block for initial decoding from HCL.
type hclSplit struct {
	Name     string         `hcl:"name,label"`
	Source   hcl.Expression `hcl:"source,optional"`
	Rows     hcl.Expression `hcl:"rows,optional"`
	Columns  hcl.Expression `hcl:"columns,optional"`
	Format   hcl.Expression `hcl:"format,optional"`
	Output   *hclOutput     `hcl:"output,block"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type hclOutput struct {
	Dir    *string `hcl:"dir,optional"`
	Bucket *string `hcl:"bucket,optional"`
	Prefix *string `hcl:"prefix,optional"`
}

// newSplitFromHCL evaluates a decoded block into a Split.
func newSplitFromHCL(parsed *hclSplit, filePath string, evalCtx *hcl.EvalContext) (*Split, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	split := &Split{
		Name:          parsed.Name,
		FSInformation: NewFSInfo(filePath),
		DeclRange:     parsed.DefRange,
	}

	if addr, err := nodeid.ParseSplit(nodeid.Node(parsed.Name).String()); err != nil || addr.IsHandle() {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid split name",
			Detail:   fmt.Sprintf("%q is not a valid name: use letters, digits, '_' and '-'.", parsed.Name),
			Subject:  parsed.DefRange.Ptr(),
		})
	}

	src, srcDiags := evalString(parsed.Source, evalCtx, "source")
	diags = append(diags, srcDiags...)
	switch {
	case srcDiags.HasErrors():
	case isNull(parsed.Source, evalCtx):
		// gohcl hands absent expression attributes over as a null literal.
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing source",
			Detail:   fmt.Sprintf("Split %q must set the source attribute to an image path or URL.", parsed.Name),
			Subject:  parsed.DefRange.Ptr(),
		})
	case strings.TrimSpace(src) == "":
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Empty source",
			Detail:   "The source attribute must reference an image.",
			Subject:  parsed.Source.Range().Ptr(),
		})
	}
	split.Source = src

	rows, rowDiags := evalDimension(parsed.Rows, evalCtx, "rows")
	diags = append(diags, rowDiags...)
	cols, colDiags := evalDimension(parsed.Columns, evalCtx, "columns")
	diags = append(diags, colDiags...)
	split.Config = geometry.Config{Rows: rows, Columns: cols}

	formatStr, fmtDiags := evalString(parsed.Format, evalCtx, "format")
	diags = append(diags, fmtDiags...)
	if !fmtDiags.HasErrors() {
		format, err := render.ParseFormat(formatStr)
		if err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid tile format",
				Detail:   err.Error(),
				Subject:  parsed.Format.Range().Ptr(),
			})
		}
		split.Format = format
	}

	if parsed.Output != nil {
		split.Output = Output{
			Dir:    deref(parsed.Output.Dir),
			Bucket: deref(parsed.Output.Bucket),
			Prefix: deref(parsed.Output.Prefix),
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}
	return split, diags
}

func isNull(expr hcl.Expression, evalCtx *hcl.EvalContext) bool {
	val, diags := expr.Value(evalCtx)
	return !diags.HasErrors() && val.IsNull()
}

// evalString evaluates expr as a string. A null value yields "".
func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext, name string) (string, hcl.Diagnostics) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", nil
	}
	strVal, err := convert.Convert(val, cty.String)
	if err != nil || !strVal.IsKnown() {
		return "", hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf("Invalid %s value", name),
			Detail:   fmt.Sprintf("The %s attribute must be a string.", name),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return strVal.AsString(), nil
}

// evalDimension evaluates a rows or columns expression. A missing attribute
// yields the minimum dimension.
func evalDimension(expr hcl.Expression, evalCtx *hcl.EvalContext, name string) (int, hcl.Diagnostics) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return 0, diags
	}
	if val.IsNull() {
		return geometry.MinDimension, nil
	}

	var n int
	numVal, err := convert.Convert(val, cty.Number)
	if err == nil {
		err = gocty.FromCtyValue(numVal, &n)
	}
	if err != nil {
		return 0, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf("Invalid %s value", name),
			Detail:   fmt.Sprintf("The %s attribute must be a whole number: %s.", name, err),
			Subject:  expr.Range().Ptr(),
		}}
	}

	if err := geometry.ValidateDimension(name, n); err != nil {
		return 0, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf("Invalid %s value", name),
			Detail:   fmt.Sprintf("The %s attribute must be between %d and %d, got %d.", name, geometry.MinDimension, geometry.MaxDimension, n),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return n, nil
}

// newEvalContext exposes the process environment as `env.NAME`.
func newEvalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !validEnvName(k) {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

func validEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
