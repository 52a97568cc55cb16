// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gdalutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WriteVectorText writes the report in the ogrinfo text layout
func WriteVectorText(w io.Writer, rep *VectorReport) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INFO: Open of `%s'\n      using driver `%s' successful.\n", rep.Source, rep.Driver)
	for _, l := range rep.Layers {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "Layer name: %s\n", l.Name)
		fmt.Fprintf(&sb, "Geometry: %s\n", l.GeometryType)
		fmt.Fprintf(&sb, "Feature Count: %d\n", l.FeatureCount)
		if l.Extent != nil {
			fmt.Fprintf(&sb, "Extent: (%f, %f) - (%f, %f)\n", l.Extent[0], l.Extent[1], l.Extent[2], l.Extent[3])
		}
		sb.WriteString("Layer SRS WKT:\n")
		if l.SRS == "" {
			sb.WriteString("(unknown)\n")
		} else {
			sb.WriteString(l.SRS + "\n")
		}
		for _, f := range l.Fields {
			fmt.Fprintf(&sb, "%s: %s\n", f.Name, f.Type)
		}
		for _, f := range l.Features {
			fmt.Fprintf(&sb, "OGRFeature(%s):%d\n", l.Name, f.Index)
			for _, v := range f.Fields {
				fmt.Fprintf(&sb, "  %s (%s) = %s\n", v.Name, v.Type, v.Value)
			}
			if f.Geometry != "" {
				sb.WriteString("  " + f.Geometry + "\n")
			}
			sb.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteVectorJSON writes the report as indented JSON
func WriteVectorJSON(w io.Writer, rep *VectorReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
