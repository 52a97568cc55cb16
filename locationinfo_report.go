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
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const offFileAlert = "Location is off this file! No further details to report."

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 15, 64)
}

// WriteLocationText writes locations in the gdallocationinfo default text layout
func WriteLocationText(w io.Writer, locs []Location) error {
	var sb strings.Builder
	for _, loc := range locs {
		sb.WriteString("Report:\n")
		if loc.OffFile {
			sb.WriteString("  " + offFileAlert + "\n")
			continue
		}
		fmt.Fprintf(&sb, "  Location: (%dP,%dL)\n", loc.Pixel, loc.Line)
		for _, b := range loc.Bands {
			fmt.Fprintf(&sb, "  Band %d:\n", b.Band)
			if b.LocationInfo != "" {
				sb.WriteString("    LocationInfo:\n")
				for _, l := range strings.Split(b.LocationInfo, "\n") {
					sb.WriteString("      " + l + "\n")
				}
			}
			sb.WriteString("    Value: " + formatValue(b.Value) + "\n")
			if b.Scaled {
				sb.WriteString("    Descaled Value: " + formatValue(b.Descaled) + "\n")
			}
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteLocationValues writes one value per line and per band. When echo is set, each
// location is written on a single line as x,y,value1,value2... using separator sep.
// Off file locations produce an empty value.
func WriteLocationValues(w io.Writer, locs []Location, echo bool, sep string) error {
	if sep == "" {
		sep = ","
	}
	var sb strings.Builder
	for _, loc := range locs {
		if echo {
			fields := []string{formatValue(loc.Input.X), formatValue(loc.Input.Y)}
			if loc.OffFile {
				fields = append(fields, "")
			}
			for _, b := range loc.Bands {
				fields = append(fields, formatValue(b.Value))
			}
			sb.WriteString(strings.Join(fields, sep) + "\n")
			continue
		}
		if loc.OffFile {
			sb.WriteString("\n")
			continue
		}
		for _, b := range loc.Bands {
			sb.WriteString(formatValue(b.Value) + "\n")
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

type xmlBandReport struct {
	XMLName       xml.Name `xml:"BandReport"`
	Band          int      `xml:"band,attr"`
	LocationInfo  string   `xml:"LocationInfo,omitempty"`
	Value         string   `xml:"Value"`
	DescaledValue string   `xml:"DescaledValue,omitempty"`
}

type xmlReport struct {
	XMLName xml.Name        `xml:"Report"`
	Pixel   *int            `xml:"pixel,attr,omitempty"`
	Line    *int            `xml:"line,attr,omitempty"`
	Alert   string          `xml:"Alert,omitempty"`
	Bands   []xmlBandReport `xml:"BandReport"`
}

// WriteLocationXML writes locations as gdallocationinfo -xml Report elements
func WriteLocationXML(w io.Writer, locs []Location) error {
	for _, loc := range locs {
		rep := xmlReport{}
		if loc.OffFile {
			rep.Alert = offFileAlert
		} else {
			px, ln := loc.Pixel, loc.Line
			rep.Pixel, rep.Line = &px, &ln
			for _, b := range loc.Bands {
				xb := xmlBandReport{
					Band:         b.Band,
					LocationInfo: b.LocationInfo,
					Value:        formatValue(b.Value),
				}
				if b.Scaled {
					xb.DescaledValue = formatValue(b.Descaled)
				}
				rep.Bands = append(rep.Bands, xb)
			}
		}
		data, err := xml.Marshal(rep)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// AnyOffFile returns ErrOffFile if at least one location is outside of the raster
func AnyOffFile(locs []Location) error {
	for _, l := range locs {
		if l.OffFile {
			return ErrOffFile
		}
	}
	return nil
}
