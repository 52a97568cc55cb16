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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/airbusgeo/cogger"
	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCOGSwitches are the gdal_translate switches used by Cogify when none are given
var DefaultCOGSwitches = []string{
	"-co", "BLOCKXSIZE=256",
	"-co", "BLOCKYSIZE=256",
	"-co", "COMPRESS=LZW",
}

type cogifyOpts struct {
	logger     *zap.Logger
	config     []string
	tmpDir     string
	overviews  bool
	levels     []int
	resampling godal.ResamplingAlg
}

// CogifyOption is an option that can be passed to Cogify
//
// Available CogifyOptions are:
//
// • TempDir
//
// • NoOverviews, OverviewLevels, OverviewResampling
//
// • ConfigOption
//
// • Logger
type CogifyOption interface {
	setCogifyOpt(o *cogifyOpts)
}

type cogifyFunc func(o *cogifyOpts)

func (f cogifyFunc) setCogifyOpt(o *cogifyOpts) { f(o) }

// TempDir sets the directory holding the intermediate tiff. Defaults to os.TempDir()
func TempDir(dir string) CogifyOption {
	return cogifyFunc(func(o *cogifyOpts) { o.tmpDir = dir })
}

// NoOverviews disables overview computation
func NoOverviews() CogifyOption {
	return cogifyFunc(func(o *cogifyOpts) { o.overviews = false })
}

// OverviewLevels sets the overview decimation factors. By default levels are computed
// so that the smallest overview fits in a single block.
func OverviewLevels(levels ...int) CogifyOption {
	return cogifyFunc(func(o *cogifyOpts) { o.levels = levels })
}

// OverviewResampling sets the resampling used to compute overviews. Defaults to godal.Average
func OverviewResampling(alg godal.ResamplingAlg) CogifyOption {
	return cogifyFunc(func(o *cogifyOpts) { o.resampling = alg })
}

// ParseResampling returns the resampling algorithm named s (e.g. "average", "nearest")
func ParseResampling(s string) (godal.ResamplingAlg, error) {
	if strings.EqualFold(s, "median") {
		return godal.Median, nil
	}
	for alg := godal.Nearest; alg <= godal.Q3; alg++ {
		if strings.EqualFold(alg.String(), s) {
			return alg, nil
		}
	}
	return godal.Nearest, fmt.Errorf("unknown resampling %q", s)
}

// Cogify converts the raster at inPath to a cloud optimized geotiff written to out.
//
// The input is first translated to a tiled BigTIFF in a temporary file using switches
// (DefaultCOGSwitches if empty), overviews are added, and the file is then reordered
// with cogger. out is not closed.
func Cogify(ctx context.Context, inPath string, out io.Writer, switches []string, opts ...CogifyOption) error {
	co := cogifyOpts{
		tmpDir:     os.TempDir(),
		overviews:  true,
		resampling: godal.Average,
	}
	for _, o := range opts {
		o.setCogifyOpt(&co)
	}
	logger := loggerOrDefault(co.logger)
	eh := godal.ErrLogger(ErrorHandler(logger))

	inds, err := godal.Open(inPath, godal.RasterOnly(), godal.ConfigOption(co.config...), eh)
	if err != nil {
		return fmt.Errorf("open %s: %w", inPath, err)
	}
	defer inds.Close()

	if len(switches) == 0 {
		switches = DefaultCOGSwitches
	}
	args := append(append([]string{}, switches...),
		"-co", "TILED=YES",
		"-co", "BIGTIFF=YES",
		"-of", "GTiff",
	)
	tmpfname := filepath.Join(co.tmpDir, uuid.New().String()+".tif")
	defer os.Remove(tmpfname)

	logger.Debug("translating to intermediate tiff", zap.String("input", inPath), zap.String("tmp", tmpfname),
		zap.Strings("switches", args))
	outds, err := inds.Translate(tmpfname, args, godal.ConfigOption(co.config...), eh)
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	if co.overviews {
		oopts := []godal.BuildOverviewsOption{godal.Resampling(co.resampling), godal.ConfigOption(co.config...), eh}
		if len(co.levels) > 0 {
			oopts = append(oopts, godal.Levels(co.levels...))
		}
		if err = outds.BuildOverviews(oopts...); err != nil {
			outds.Close()
			return fmt.Errorf("build overviews: %w", err)
		}
	}
	if err = outds.Close(eh); err != nil {
		return fmt.Errorf("close temp tif: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpf, err := os.Open(tmpfname)
	if err != nil {
		return fmt.Errorf("re-open temp tif %s: %w", tmpfname, err)
	}
	defer tmpf.Close()
	if err = cogger.Rewrite(out, tmpf); err != nil {
		return fmt.Errorf("cogger.rewrite: %w", err)
	}
	return nil
}

// COGReport is the outcome of ValidateCOG
type COGReport struct {
	Path     string
	Errors   []string
	Warnings []string
	// IFDOffsets holds the byte offset of the main image IFD followed by those of the
	// overviews, from largest to smallest
	IFDOffsets []int64
	// DataOffsets holds the offset of the first block of the main image followed by
	// those of the overviews
	DataOffsets []int64
	// Structural holds the items of the gdal structural metadata block written after
	// the tiff header by the COG driver, if any
	Structural map[string]string
}

// Valid returns true if no error was found. Warnings do not invalidate a file.
func (r *COGReport) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns nil for a valid file, and an error wrapping ErrNotCOG otherwise
func (r *COGReport) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("%s: %w: %s", r.Path, ErrNotCOG, strings.Join(r.Errors, "; "))
}

func (r *COGReport) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *COGReport) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type validateOpts struct {
	logger *zap.Logger
	strict bool
	config []string
}

// ValidateOption is an option that can be passed to ValidateCOG
//
// Available ValidateOptions are:
//
// • Strict
//
// • Logger
//
// • ConfigOption
type ValidateOption interface {
	setValidateOpt(o *validateOpts)
}

type strictOpt struct{}

// Strict reports warnings as errors
func Strict() interface {
	ValidateOption
} {
	return strictOpt{}
}

func (strictOpt) setValidateOpt(o *validateOpts) { o.strict = true }

const (
	// cogOverviewThreshold is the size above which internal overviews are expected
	cogOverviewThreshold = 512
	// cogStripMax is the largest strip width accepted for an untiled image
	cogStripMax = 1024
)

// ValidateCOG checks that the file at path is a cloud optimized geotiff: a tiled
// GTiff whose IFDs precede the image data, with internal overviews laid out so that
// the smallest overview's data comes first.
//
// An error is returned only when the file cannot be opened; validation failures are
// listed in the report.
func ValidateCOG(path string, opts ...ValidateOption) (*COGReport, error) {
	vo := validateOpts{}
	for _, o := range opts {
		o.setValidateOpt(&vo)
	}
	logger := loggerOrDefault(vo.logger)
	ds, err := godal.Open(path, godal.RasterOnly(), godal.ConfigOption(vo.config...),
		godal.ErrLogger(ErrorHandler(logger)))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	rep := &COGReport{Path: path}
	defer func() {
		if vo.strict {
			rep.Errors = append(rep.Errors, rep.Warnings...)
			rep.Warnings = nil
		}
	}()
	if drv := ds.Driver().ShortName(); drv != "GTiff" {
		rep.errorf("The file is not a GeoTIFF (driver %s)", drv)
		return rep, nil
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		rep.errorf("The file has no raster band")
		return rep, nil
	}
	if f, err := godal.VSIOpen(path + ".ovr"); err == nil {
		f.Close()
		rep.errorf("Overviews found in external .ovr file. They should be internal")
	}

	main := bands[0]
	st := main.Structure()
	ovrs := main.Overviews()
	if st.SizeX > cogOverviewThreshold || st.SizeY > cogOverviewThreshold {
		if st.BlockSizeX == st.SizeX && st.BlockSizeX > cogStripMax {
			rep.errorf("The file is greater than %dxH or Wx%d, but is not tiled", cogOverviewThreshold, cogOverviewThreshold)
		}
		if len(ovrs) == 0 {
			rep.warnf("The file is greater than %dxH or Wx%d, it is recommended to include internal overviews",
				cogOverviewThreshold, cogOverviewThreshold)
		}
	}

	rep.IFDOffsets = append(rep.IFDOffsets, tiffOffset(main, "IFD_OFFSET"))
	if off := rep.IFDOffsets[0]; off != 8 && off != 16 {
		expected, structural, err := readTIFFHeader(path)
		if err != nil {
			rep.errorf("Cannot read tiff header: %v", err)
		} else {
			rep.Structural = structural
			rep.checkMainIFD(off, expected)
		}
	}
	prev := st
	for i, ovr := range ovrs {
		ost := ovr.Structure()
		if ost.SizeX > prev.SizeX || ost.SizeY > prev.SizeY {
			if i == 0 {
				rep.errorf("First overview has larger dimension than main band")
			} else {
				rep.errorf("Overview of index %d has larger dimension than overview of index %d", i, i-1)
			}
		}
		if ost.BlockSizeX == ost.SizeX && ost.BlockSizeX > cogStripMax {
			rep.errorf("Overview of index %d is not tiled", i)
		}
		prev = ost
		rep.IFDOffsets = append(rep.IFDOffsets, tiffOffset(ovr, "IFD_OFFSET"))
	}

	rep.DataOffsets = append(rep.DataOffsets, tiffOffset(main, "BLOCK_OFFSET_0_0"))
	for _, ovr := range ovrs {
		rep.DataOffsets = append(rep.DataOffsets, tiffOffset(ovr, "BLOCK_OFFSET_0_0"))
	}
	rep.checkOffsets()

	if layout := ds.Metadata("LAYOUT", godal.Domain("IMAGE_STRUCTURE")); layout != "COG" {
		rep.warnf("The file was not generated with the COG layout marker (LAYOUT=COG)")
	}
	logger.Debug("validated cog", zap.String("path", path), zap.Int("errors", len(rep.Errors)),
		zap.Int("warnings", len(rep.Warnings)))
	return rep, nil
}

// checkMainIFD checks the main IFD offset against the one expected after the header
// and the gdal structural metadata
func (r *COGReport) checkMainIFD(off, expected int64) {
	if r.Structural["KNOWN_INCOMPATIBLE_EDITION"] == "YES" {
		r.errorf("KNOWN_INCOMPATIBLE_EDITION=YES is declared in the file")
	}
	// ifds are word aligned
	if expected != off && expected+expected%2 != off {
		r.errorf("The offset of the main IFD should be %d. It is %d instead", expected, off)
	}
}

// checkOffsets checks that IFDs are sorted from the main image to the smallest overview
// and precede the image data, which is laid out from the smallest overview to the main
// image. A zero data offset denotes an image without any written block.
func (r *COGReport) checkOffsets() {
	ifds, data := r.IFDOffsets, r.DataOffsets
	for i := 1; i < len(ifds); i++ {
		if ifds[i] >= ifds[i-1] {
			continue
		}
		if i == 1 {
			r.errorf("The offset of the IFD for overview of index %d is %d, whereas it should be greater than the one of the main image, which is at byte %d",
				i-1, ifds[i], ifds[i-1])
		} else {
			r.errorf("The offset of the IFD for overview of index %d is %d, whereas it should be greater than the one of index %d, which is at byte %d",
				i-1, ifds[i], i-2, ifds[i-1])
		}
	}
	if len(data) == 0 || len(ifds) == 0 {
		return
	}
	nOvr := len(data) - 1
	if last := data[nOvr]; last != 0 && last < ifds[len(ifds)-1] {
		if nOvr > 0 {
			r.errorf("The offset of the first block of the smallest overview should be after its IFD")
		} else {
			r.errorf("The offset of the first block of the image should be after its IFD")
		}
	}
	for i := len(data) - 2; i > 0; i-- {
		if data[i] != 0 && data[i] < data[i+1] {
			r.errorf("The offset of the first block of overview of index %d should be after the one of the overview of index %d", i-1, i)
		}
	}
	if len(data) >= 2 && data[0] != 0 && data[0] < data[1] {
		r.errorf("The offset of the first block of the main resolution image should be after the one of the overview of index %d", nOvr-1)
	}
}

const structuralPrefix = "GDAL_STRUCTURAL_METADATA_SIZE="

// readTIFFHeader returns the expected offset of the main IFD of the tiff at path,
// accounting for a gdal structural metadata block following the header
func readTIFFHeader(path string) (int64, map[string]string, error) {
	f, err := godal.VSIOpen(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	buf := make([]byte, 1024)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, nil, err
	}
	return parseTIFFHeader(buf[:n])
}

// parseTIFFHeader parses the first bytes of a tiff file
func parseTIFFHeader(buf []byte) (int64, map[string]string, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("file too small")
	}
	headerLen := int64(16)
	if (buf[2] == 0x2a && buf[3] == 0) || (buf[2] == 0 && buf[3] == 0x2a) {
		headerLen = 8
	}
	rest := string(buf[min(int(headerLen), len(buf)):])
	if !strings.HasPrefix(rest, structuralPrefix) {
		return headerLen, nil, nil
	}
	eol := strings.IndexByte(rest, '\n')
	if eol < 0 {
		return 0, nil, fmt.Errorf("truncated structural metadata")
	}
	sizeStr := strings.TrimSuffix(strings.TrimPrefix(rest[:eol], structuralPrefix), " bytes")
	size, err := strconv.Atoi(strings.TrimSpace(sizeStr))
	if err != nil {
		return 0, nil, fmt.Errorf("parse structural metadata size %q: %w", sizeStr, err)
	}
	structural := map[string]string{}
	body := rest[eol+1:]
	if size < len(body) {
		body = body[:size]
	}
	for _, line := range strings.Split(body, "\n") {
		if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			structural[k] = v
		}
	}
	return headerLen + int64(eol+1) + int64(size), structural, nil
}

// tiffOffset returns a byte offset exposed in the TIFF metadata domain of a GTiff band,
// 0 if absent
func tiffOffset(b godal.Band, key string) int64 {
	v, err := strconv.ParseInt(b.Metadata(key, godal.Domain("TIFF")), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
