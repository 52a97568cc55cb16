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
	"github.com/airbusgeo/gdalutils/internal/log"
	"go.uber.org/zap"
)

type loggerOpt struct {
	l *zap.Logger
}

// Logger sets the logger receiving progress messages and gdal warnings emitted during
// the operation. Defaults to the process wide logger.
func Logger(l *zap.Logger) interface {
	LocationOption
	CompareOption
	EditOption
	CalcOption
	VectorInfoOption
	AlgebraOption
	CogifyOption
	ValidateOption
} {
	return loggerOpt{l}
}

func (lo loggerOpt) setLocationOpt(o *locationOpts)     { o.logger = lo.l }
func (lo loggerOpt) setCompareOpt(o *compareOpts)       { o.logger = lo.l }
func (lo loggerOpt) setEditOpt(o *editOpts)             { o.logger = lo.l }
func (lo loggerOpt) setCalcOpt(o *calcOpts)             { o.logger = lo.l }
func (lo loggerOpt) setVectorInfoOpt(o *vectorInfoOpts) { o.logger = lo.l }
func (lo loggerOpt) setAlgebraOpt(o *algebraOpts)       { o.logger = lo.l }
func (lo loggerOpt) setCogifyOpt(o *cogifyOpts)         { o.logger = lo.l }
func (lo loggerOpt) setValidateOpt(o *validateOpts)     { o.logger = lo.l }

func loggerOrDefault(l *zap.Logger) *zap.Logger {
	if l == nil {
		return log.L()
	}
	return l
}

type configOpt struct {
	config []string
}

// ConfigOption sets gdal configuration options (KEY=VALUE) for the gdal calls issued
// by the operation.
func ConfigOption(cfgs ...string) interface {
	CalcOption
	ChecksumOption
	CogifyOption
	CompareOption
	ValidateOption
} {
	return configOpt{cfgs}
}

func (co configOpt) setCalcOpt(o *calcOpts)     { o.config = append(o.config, co.config...) }
func (co configOpt) setCogifyOpt(o *cogifyOpts) { o.config = append(o.config, co.config...) }
func (co configOpt) setChecksumOpt(o *checksumOpts) {
	o.config = append(o.config, co.config...)
}
func (co configOpt) setCompareOpt(o *compareOpts) {
	o.config = append(o.config, co.config...)
}
func (co configOpt) setValidateOpt(o *validateOpts) {
	o.config = append(o.config, co.config...)
}

type creationOpt struct {
	creation []string
}

// CreationOption sets driver specific creation options (KEY=VALUE) on created datasets
func CreationOption(opts ...string) interface {
	CalcOption
} {
	return creationOpt{opts}
}

func (co creationOpt) setCalcOpt(o *calcOpts) { o.creation = append(o.creation, co.creation...) }
