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
	"bytes"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"sort"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// mask flags as returned by godal.Band.MaskFlags
const (
	maskAllValid   = 0x01
	maskPerDataset = 0x02
)

// Check is a family of comparisons that can be disabled with Skip
type Check int

const (
	// GeoTransformCheck compares the dataset geotransforms
	GeoTransformCheck Check = iota
	// SRSCheck compares the dataset spatial references
	SRSCheck
	// MetadataCheck compares the default metadata domain of datasets and bands
	MetadataCheck
	// RPCCheck compares the RPC metadata domain
	RPCCheck
	// GeolocationCheck compares the GEOLOCATION metadata domain
	GeolocationCheck
	// OverviewsCheck compares overview counts and checksums
	OverviewsCheck
	// BinaryCheck compares files byte by byte before opening them (CompareFiles only)
	BinaryCheck
)

// Report lists the differences found by Compare
type Report struct {
	Differences []string
}

// Count returns the number of differences
func (r *Report) Count() int {
	return len(r.Differences)
}

func (r *Report) add(format string, args ...interface{}) {
	r.Differences = append(r.Differences, fmt.Sprintf(format, args...))
}

type compareOpts struct {
	logger *zap.Logger
	skip   map[Check]bool
	config []string
}

// CompareOption is an option that can be passed to Compare or CompareFiles
//
// Available CompareOptions are:
//
// • Skip
//
// • Logger
//
// • ConfigOption
type CompareOption interface {
	setCompareOpt(o *compareOpts)
}

type skipOpt struct {
	checks []Check
}

// Skip disables the given checks
func Skip(checks ...Check) interface {
	CompareOption
} {
	return skipOpt{checks}
}

func (so skipOpt) setCompareOpt(o *compareOpts) {
	for _, c := range so.checks {
		o.skip[c] = true
	}
}

func newCompareOpts(opts []CompareOption) compareOpts {
	co := compareOpts{skip: map[Check]bool{}}
	for _, o := range opts {
		o.setCompareOpt(&co)
	}
	co.logger = loggerOrDefault(co.logger)
	return co
}

// CompareFiles opens goldenPath and candidatePath and compares them. Unless BinaryCheck
// is skipped, byte-identical files are reported as equal without being opened as
// datasets, and files differing at the binary level count as one difference.
func CompareFiles(goldenPath, candidatePath string, opts ...CompareOption) (*Report, error) {
	co := newCompareOpts(opts)
	rep := &Report{}
	if !co.skip[BinaryCheck] {
		same, err := vsiEqual(goldenPath, candidatePath)
		if err != nil {
			return nil, err
		}
		if same {
			return rep, nil
		}
		rep.add("Files differ at the binary level.")
	}
	golden, err := godal.Open(goldenPath, godal.RasterOnly(), godal.ConfigOption(co.config...))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", goldenPath, err)
	}
	defer golden.Close()
	candidate, err := godal.Open(candidatePath, godal.RasterOnly(), godal.ConfigOption(co.config...))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", candidatePath, err)
	}
	defer candidate.Close()
	dsrep, err := compare(golden, candidate, co)
	if err != nil {
		return nil, err
	}
	rep.Differences = append(rep.Differences, dsrep.Differences...)
	return rep, nil
}

// Compare compares a candidate dataset against a golden one, in the manner of
// gdalcompare. Differences are listed in the returned Report, an error is returned only
// if a dataset could not be read.
func Compare(golden, candidate *godal.Dataset, opts ...CompareOption) (*Report, error) {
	return compare(golden, candidate, newCompareOpts(opts))
}

func compare(golden, candidate *godal.Dataset, co compareOpts) (*Report, error) {
	rep := &Report{}
	gdrv, cdrv := golden.Driver().ShortName(), candidate.Driver().ShortName()
	if gdrv != cdrv {
		rep.add("Driver: golden %s, new %s", gdrv, cdrv)
	}
	gst, cst := golden.Structure(), candidate.Structure()
	if gst.SizeX != cst.SizeX || gst.SizeY != cst.SizeY {
		rep.add("Image size: golden %dx%d, new %dx%d", gst.SizeX, gst.SizeY, cst.SizeX, cst.SizeY)
	}
	if !co.skip[GeoTransformCheck] {
		compareGeoTransform(rep, golden, candidate)
	}
	if !co.skip[SRSCheck] {
		compareSRS(rep, golden, candidate)
	}
	if !co.skip[MetadataCheck] {
		compareMetadata(rep, "Dataset", golden.Metadatas(), candidate.Metadatas())
	}
	if !co.skip[RPCCheck] {
		compareMetadata(rep, "RPC", golden.Metadatas(godal.Domain("RPC")), candidate.Metadatas(godal.Domain("RPC")))
	}
	if !co.skip[GeolocationCheck] {
		compareMetadata(rep, "GEOLOCATION", golden.Metadatas(godal.Domain("GEOLOCATION")),
			candidate.Metadatas(godal.Domain("GEOLOCATION")))
	}

	gbands, cbands := golden.Bands(), candidate.Bands()
	if len(gbands) != len(cbands) {
		rep.add("Band count: golden %d, new %d", len(gbands), len(cbands))
		co.logger.Debug("skipping band comparison", zap.Int("golden", len(gbands)), zap.Int("new", len(cbands)))
		return rep, nil
	}
	if gst.SizeX != cst.SizeX || gst.SizeY != cst.SizeY {
		return rep, nil
	}
	for i := range gbands {
		if err := compareBand(rep, co, fmt.Sprintf("Band %d", i+1), gbands[i], cbands[i]); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

func compareGeoTransform(rep *Report, golden, candidate *godal.Dataset) {
	ggt, gerr := golden.GeoTransform()
	cgt, cerr := candidate.GeoTransform()
	switch {
	case gerr != nil && cerr != nil:
		return
	case gerr != nil || cerr != nil:
		rep.add("GeoTransform: golden %s, new %s", formatGeoTransform(ggt, gerr), formatGeoTransform(cgt, cerr))
		return
	}
	for i := range ggt {
		if math.Abs(ggt[i]-cgt[i]) > 1e-10*math.Max(1, math.Abs(ggt[i])) {
			rep.add("GeoTransform: golden %s, new %s", formatGeoTransform(ggt, nil), formatGeoTransform(cgt, nil))
			return
		}
	}
}

func formatGeoTransform(gt [6]float64, err error) string {
	if err != nil {
		return "none"
	}
	return fmt.Sprintf("%v", gt)
}

func compareSRS(rep *Report, golden, candidate *godal.Dataset) {
	gwkt, cwkt := golden.Projection(), candidate.Projection()
	if gwkt == cwkt {
		return
	}
	if gwkt == "" || cwkt == "" {
		rep.add("Projection: golden %q, new %q", gwkt, cwkt)
		return
	}
	if !golden.SpatialRef().IsSame(candidate.SpatialRef()) {
		rep.add("Projection: golden %q, new %q", gwkt, cwkt)
	}
}

func compareMetadata(rep *Report, id string, golden, candidate map[string]string) {
	if len(golden) == 0 && len(candidate) == 0 {
		return
	}
	if len(golden) != len(candidate) {
		rep.add("%s metadata key count: golden %d, new %d", id, len(golden), len(candidate))
	}
	keys := make([]string, 0, len(golden))
	for k := range golden {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cv, ok := candidate[k]
		if !ok {
			rep.add("%s metadata: %s present in golden, missing in new", id, k)
			continue
		}
		if cv != golden[k] {
			rep.add("%s metadata %s: golden %q, new %q", id, k, golden[k], cv)
		}
	}
}

func compareBand(rep *Report, co compareOpts, id string, golden, candidate godal.Band) error {
	gst, cst := golden.Structure(), candidate.Structure()
	if gst.DataType != cst.DataType {
		rep.add("%s pixel type: golden %s, new %s", id, gst.DataType, cst.DataType)
	}
	gnd, gok := golden.NoData()
	cnd, cok := candidate.NoData()
	if gok != cok || (gok && gnd != cnd && !(math.IsNaN(gnd) && math.IsNaN(cnd))) {
		rep.add("%s nodata: golden %s, new %s", id, formatNoData(gnd, gok), formatNoData(cnd, cok))
	}
	if gci, cci := golden.ColorInterp(), candidate.ColorInterp(); gci != cci {
		rep.add("%s color interpretation: golden %s, new %s", id, gci.Name(), cci.Name())
	}
	if gd, cd := golden.Description(), candidate.Description(); gd != cd {
		rep.add("%s description: golden %q, new %q", id, gd, cd)
	}
	if !co.skip[MetadataCheck] {
		compareMetadata(rep, id, golden.Metadatas(), candidate.Metadatas())
	}
	if err := compareBandPixels(rep, co, id, golden, candidate); err != nil {
		return err
	}

	if !co.skip[OverviewsCheck] {
		govr, covr := golden.Overviews(), candidate.Overviews()
		if len(govr) != len(covr) {
			rep.add("%s overview count: golden %d, new %d", id, len(govr), len(covr))
		} else {
			for i := range govr {
				gs, cs := govr[i].Structure(), covr[i].Structure()
				oid := fmt.Sprintf("%s overview %d", id, i+1)
				if gs.SizeX != cs.SizeX || gs.SizeY != cs.SizeY {
					rep.add("%s size: golden %dx%d, new %dx%d", oid, gs.SizeX, gs.SizeY, cs.SizeX, cs.SizeY)
					continue
				}
				if err := compareBandPixels(rep, co, oid, govr[i], covr[i]); err != nil {
					return err
				}
			}
		}
	}

	gflags, cflags := golden.MaskFlags(), candidate.MaskFlags()
	if gflags != cflags {
		rep.add("%s mask flags: golden %d, new %d", id, gflags, cflags)
	} else if gflags&maskAllValid == 0 && gflags&maskPerDataset == 0 {
		if err := compareBandPixels(rep, co, id+" mask", golden.MaskBand(), candidate.MaskBand()); err != nil {
			return err
		}
	}
	return nil
}

func formatNoData(v float64, ok bool) string {
	if !ok {
		return "none"
	}
	return formatValue(v)
}

// compareBandPixels compares checksums, and on mismatch counts the differing pixels
func compareBandPixels(rep *Report, co compareOpts, id string, golden, candidate godal.Band) error {
	gcs, err := Checksum(golden, ConfigOption(co.config...))
	if err != nil {
		return fmt.Errorf("%s golden checksum: %w", id, err)
	}
	ccs, err := Checksum(candidate, ConfigOption(co.config...))
	if err != nil {
		return fmt.Errorf("%s new checksum: %w", id, err)
	}
	if gcs == ccs {
		return nil
	}
	count, maxDiff, err := pixelDiff(golden, candidate, godal.ConfigOption(co.config...))
	if err != nil {
		return fmt.Errorf("%s pixel compare: %w", id, err)
	}
	rep.add("%s checksum difference: golden %d, new %d", id, gcs, ccs)
	rep.add("%s Pixels Differing: %d", id, count)
	rep.add("%s Maximum Pixel Difference: %s", id, formatValue(maxDiff))
	return nil
}

func pixelDiff(golden, candidate godal.Band, opts ...godal.BandIOOption) (count int, maxDiff float64, err error) {
	st := golden.Structure()
	if isComplex(st.DataType) || isComplex(candidate.Structure().DataType) {
		gl, cl := make([]complex128, st.SizeX), make([]complex128, st.SizeX)
		for y := 0; y < st.SizeY; y++ {
			if err = golden.Read(0, y, gl, st.SizeX, 1, opts...); err != nil {
				return
			}
			if err = candidate.Read(0, y, cl, st.SizeX, 1, opts...); err != nil {
				return
			}
			for x := range gl {
				if gl[x] != cl[x] {
					count++
					maxDiff = math.Max(maxDiff, cmplx.Abs(gl[x]-cl[x]))
				}
			}
		}
		return
	}
	gl, cl := make([]float64, st.SizeX), make([]float64, st.SizeX)
	for y := 0; y < st.SizeY; y++ {
		if err = golden.Read(0, y, gl, st.SizeX, 1, opts...); err != nil {
			return
		}
		if err = candidate.Read(0, y, cl, st.SizeX, 1, opts...); err != nil {
			return
		}
		for x := range gl {
			if gl[x] == cl[x] || (math.IsNaN(gl[x]) && math.IsNaN(cl[x])) {
				continue
			}
			count++
			maxDiff = math.Max(maxDiff, math.Abs(gl[x]-cl[x]))
		}
	}
	return
}

// vsiEqual compares two files byte by byte through gdal's virtual file system
func vsiEqual(a, b string) (bool, error) {
	fa, err := godal.VSIOpen(a)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", a, err)
	}
	defer fa.Close()
	fb, err := godal.VSIOpen(b)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", b, err)
	}
	defer fb.Close()
	ba, bb := make([]byte, 1<<16), make([]byte, 1<<16)
	for {
		na, erra := io.ReadFull(fa, ba)
		nb, errb := io.ReadFull(fb, bb)
		if na != nb || !bytes.Equal(ba[:na], bb[:nb]) {
			return false, nil
		}
		enda := erra == io.EOF || erra == io.ErrUnexpectedEOF
		endb := errb == io.EOF || errb == io.ErrUnexpectedEOF
		if erra != nil && !enda {
			return false, fmt.Errorf("read %s: %w", a, erra)
		}
		if errb != nil && !endb {
			return false, fmt.Errorf("read %s: %w", b, errb)
		}
		if enda || endb {
			return enda && endb, nil
		}
	}
}
