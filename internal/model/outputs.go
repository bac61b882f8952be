// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package model

import (
	"github.com/specialistvlad/gridsplit/internal/node"
	"github.com/specialistvlad/gridsplit/internal/render"
	"github.com/specialistvlad/gridsplit/internal/source"
	"github.com/specialistvlad/gridsplit/internal/topology"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// PortType is the cty type of a single port.
var PortType = cty.Object(map[string]cty.Type{
	"handle":   cty.String,
	"label":    cty.String,
	"position": cty.Number,
})

// TileType is the cty type of a single rendered tile.
var TileType = cty.Object(map[string]cty.Type{
	"handle":     cty.String,
	"format":     cty.String,
	"media_type": cty.String,
	"file_name":  cty.String,
	"index":      cty.Number,
	"row":        cty.Number,
	"column":     cty.Number,
	"x":          cty.Number,
	"y":          cty.Number,
	"width":      cty.Number,
	"height":     cty.Number,
	"size":       cty.Number,
	"data_url":   cty.String,
})

// PortsValue converts ports to a list of PortType objects.
func PortsValue(ports []topology.Port) cty.Value {
	if len(ports) == 0 {
		return cty.ListValEmpty(PortType)
	}
	vals := make([]cty.Value, 0, len(ports))
	for _, p := range ports {
		vals = append(vals, cty.ObjectVal(map[string]cty.Value{
			"handle":   cty.StringVal(p.HandleID),
			"label":    cty.StringVal(p.Label),
			"position": cty.NumberFloatVal(p.Position),
		}))
	}
	return cty.ListVal(vals)
}

// TileValue converts one artifact. data_url is null unless withData is set.
func TileValue(a render.Artifact, withData bool) cty.Value {
	dataURL := cty.NullVal(cty.String)
	if withData {
		dataURL = cty.StringVal(a.DataURL())
	}
	m := a.Metadata
	return cty.ObjectVal(map[string]cty.Value{
		"handle":     cty.StringVal(a.HandleID),
		"format":     cty.StringVal(a.Format.String()),
		"media_type": cty.StringVal(a.MediaType),
		"file_name":  cty.StringVal(a.FileName()),
		"index":      cty.NumberIntVal(int64(m.Index)),
		"row":        cty.NumberIntVal(int64(m.Row)),
		"column":     cty.NumberIntVal(int64(m.Col)),
		"x":          cty.NumberIntVal(int64(m.X)),
		"y":          cty.NumberIntVal(int64(m.Y)),
		"width":      cty.NumberIntVal(int64(m.Width)),
		"height":     cty.NumberIntVal(int64(m.Height)),
		"size":       cty.NumberIntVal(int64(len(a.Data))),
		"data_url":   dataURL,
	})
}

// OutputsValue converts a node's outputs to a map keyed by handle id.
func OutputsValue(outputs map[string]render.Artifact, withData bool) cty.Value {
	if len(outputs) == 0 {
		return cty.MapValEmpty(TileType)
	}
	vals := make(map[string]cty.Value, len(outputs))
	for handle, a := range outputs {
		vals[handle] = TileValue(a, withData)
	}
	return cty.MapVal(vals)
}

// NodeValue converts a whole snapshot.
func NodeValue(snap node.Snapshot, withData bool) cty.Value {
	warning := cty.NullVal(cty.String)
	if w := snap.Config.Warning(); w != "" {
		warning = cty.StringVal(w)
	}
	errMsg := cty.NullVal(cty.String)
	if snap.Error != "" {
		errMsg = cty.StringVal(snap.Error)
	}
	src := cty.NullVal(cty.String)
	if snap.HasSource {
		src = cty.StringVal(source.Describe(snap.SourceRef))
	}

	return cty.ObjectVal(map[string]cty.Value{
		"id":         cty.StringVal(snap.ID),
		"status":     cty.StringVal(snap.Status.String()),
		"error":      errMsg,
		"rows":       cty.NumberIntVal(int64(snap.Config.Rows)),
		"columns":    cty.NumberIntVal(int64(snap.Config.Columns)),
		"tile_count": cty.NumberIntVal(int64(snap.Config.TileCount())),
		"count_text": cty.StringVal(snap.Config.CountText()),
		"warning":    warning,
		"source":     src,
		"epoch":      cty.NumberUIntVal(snap.Epoch),
		"ports":      PortsValue(snap.Ports),
		"outputs":    OutputsValue(snap.Outputs, withData),
	})
}

// MarshalJSON encodes v with its own type.
func MarshalJSON(v cty.Value) ([]byte, error) {
	return ctyjson.Marshal(v, v.Type())
}
