// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/specialistvlad/gridsplit/internal/model"
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/topology"
	"github.com/zclconf/go-cty/cty"
)

// Ports prints the output ports of every split without rendering anything.
func (a *App) Ports(w io.Writer, asJSON bool) error {
	snaps := a.snapshots()
	if asJSON {
		return writePortsJSON(w, snaps)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, snap := range snaps {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", snap.ID, snap.Config.String(), snap.Config.CountText())
		if warning := snap.Config.Warning(); warning != "" {
			fmt.Fprintf(tw, "  ⚠ %s\n", warning)
		}
		fmt.Fprintf(tw, "  in\t%s\t\n", topology.InputHandle)
		for _, p := range snap.Ports {
			fmt.Fprintf(tw, "  %s\t%s\t%.3f\n", p.HandleID, p.Label, p.Position)
		}
	}
	return tw.Flush()
}

func writePortsJSON(w io.Writer, snaps []node.Snapshot) error {
	vals := make([]cty.Value, 0, len(snaps))
	for _, snap := range snaps {
		vals = append(vals, cty.ObjectVal(map[string]cty.Value{
			"node":        cty.StringVal(snap.ID),
			"input":       cty.StringVal(topology.InputHandle),
			"rows":        cty.NumberIntVal(int64(snap.Config.Rows)),
			"columns":     cty.NumberIntVal(int64(snap.Config.Columns)),
			"count_text":  cty.StringVal(snap.Config.CountText()),
			"exceeds_max": cty.BoolVal(snap.Config.ExceedsMax()),
			"ports":       model.PortsValue(snap.Ports),
		}))
	}
	body, err := model.MarshalJSON(cty.TupleVal(vals))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(body))
	return err
}
