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

// Package driverdoc renders driver capability tables, as reStructuredText for the gdal
// documentation or as Markdown.
package driverdoc

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/airbusgeo/gdalutils"
	"github.com/airbusgeo/gdalutils/internal/config"
	"github.com/edisonguo/jet"
)

// Format is an output format
type Format int

const (
	// RST outputs a list-table summary followed by one section per driver, using the
	// driver capability directives of the gdal documentation
	RST Format = iota
	// Markdown outputs a single table
	Markdown
)

func (f Format) String() string {
	switch f {
	case RST:
		return "rst"
	case Markdown:
		return "md"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses "rst" or "md"/"markdown"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "rst":
		return RST, nil
	case "md", "markdown":
		return Markdown, nil
	}
	return 0, fmt.Errorf("unknown format %q", s)
}

// ApplyOverrides fills the capabilities gdal does not advertise from overrides, keyed by
// driver short name (or by lookup name for missing drivers)
func ApplyOverrides(caps []gdalutils.Capabilities, overrides map[string]config.DriverOverride) {
	for i := range caps {
		ov, ok := overrides[caps[i].ShortName]
		if !ok {
			ov, ok = overrides[caps[i].Name]
		}
		if !ok {
			continue
		}
		caps[i].Georeferencing = ov.Georeferencing
		caps[i].BuiltIn = ov.BuiltIn
		caps[i].Deprecated = ov.Deprecated
		caps[i].Dependencies = ov.Dependencies
	}
}

type driverView struct {
	gdalutils.Capabilities
	Anchor     string
	Title      string
	Underline  string
	Extensions string
	Deps       string
}

func newDriverView(c gdalutils.Capabilities) driverView {
	title := c.ShortName + " -- " + c.LongName
	kind := "raster."
	if !c.Raster && c.Vector {
		kind = "vector."
	}
	return driverView{
		Capabilities: c,
		Anchor:       kind + strings.ToLower(strings.ReplaceAll(c.ShortName, " ", "_")),
		Title:        title,
		Underline:    strings.Repeat("=", len(title)),
		Extensions:   strings.Join(c.Extensions, " "),
		Deps:         strings.Join(c.Dependencies, ", "),
	}
}

const rstTemplate = `.. list-table:: Drivers
   :header-rows: 1

   * - Driver
     - Long name
     - Raster
     - Vector
     - Create
     - CreateCopy
     - Georeferencing
     - Virtual I/O
{{ range i, d := drivers }}   * - {{ d.ShortName }}
     - {{ d.LongName }}
     - {{ yesno(d.Raster) }}
     - {{ yesno(d.Vector) }}
     - {{ yesno(d.Create) }}
     - {{ yesno(d.CreateCopy) }}
     - {{ yesno(d.Georeferencing) }}
     - {{ yesno(d.VirtualIO) }}
{{ end }}{{ range i, d := drivers }}
.. _{{ d.Anchor }}:

{{ d.Title }}
{{ d.Underline }}

.. shortname:: {{ d.ShortName }}
{{ if d.Deps != "" }}
.. build_dependencies:: {{ d.Deps }}
{{ end }}{{ if d.BuiltIn }}
.. built_in_by_default::
{{ end }}{{ if d.Deprecated }}
.. deprecated_driver::
{{ end }}{{ if d.Create }}
.. supports_create::
{{ end }}{{ if d.CreateCopy }}
.. supports_createcopy::
{{ end }}{{ if d.Georeferencing }}
.. supports_georeferencing::
{{ end }}{{ if d.VirtualIO }}
.. supports_virtualio::
{{ end }}{{ if d.MultiDim }}
.. supports_multidimensional::
{{ end }}{{ if d.Extensions != "" }}
Extensions: {{ d.Extensions }}
{{ end }}{{ end }}{{ range i, name := missing }}
.. warning:: Driver {{ name }} is not available in this build.
{{ end }}`

const markdownTemplate = `| Driver | Long name | Raster | Vector | Create | CreateCopy | Georeferencing | Virtual I/O | Extensions |
|---|---|---|---|---|---|---|---|---|
{{ range i, d := drivers }}| {{ d.ShortName }} | {{ d.LongName }} | {{ yesno(d.Raster) }} | {{ yesno(d.Vector) }} | {{ yesno(d.Create) }} | {{ yesno(d.CreateCopy) }} | {{ yesno(d.Georeferencing) }} | {{ yesno(d.VirtualIO) }} | {{ d.Extensions }} |
{{ end }}{{ range i, name := missing }}
Driver {{ name }} is not available in this build.
{{ end }}`

var (
	templatesOnce sync.Once
	templates     map[Format]*jet.Template
	templatesErr  error
)

func loadTemplates() (map[Format]*jet.Template, error) {
	templatesOnce.Do(func() {
		set := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
			w.Write(b)
		}))
		set.AddGlobal("yesno", func(b bool) string {
			if b {
				return "Yes"
			}
			return "No"
		})
		templates = map[Format]*jet.Template{}
		for f, src := range map[Format]string{RST: rstTemplate, Markdown: markdownTemplate} {
			tpl, err := set.LoadTemplate("drivers."+f.String(), src)
			if err != nil {
				templatesErr = fmt.Errorf("parse %s template: %w", f, err)
				return
			}
			templates[f] = tpl
		}
	})
	return templates, templatesErr
}

// Render writes the capability table of caps to w. Drivers that were not found are
// listed after the table.
func Render(w io.Writer, caps []gdalutils.Capabilities, f Format) error {
	tpls, err := loadTemplates()
	if err != nil {
		return err
	}
	tpl, ok := tpls[f]
	if !ok {
		return fmt.Errorf("unsupported format %v", f)
	}
	drivers := []driverView{}
	missing := []string{}
	for _, c := range caps {
		if !c.Found {
			missing = append(missing, c.Name)
			continue
		}
		drivers = append(drivers, newDriverView(c))
	}
	vars := make(jet.VarMap)
	vars.Set("drivers", drivers)
	vars.Set("missing", missing)
	if err := tpl.Execute(w, vars, nil); err != nil {
		return fmt.Errorf("render %s: %w", f, err)
	}
	return nil
}
