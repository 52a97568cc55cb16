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
	"errors"

	"github.com/airbusgeo/gdalutils/internal/log"
	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

var (
	// ErrOffFile is returned when a requested location falls outside of the raster
	ErrOffFile = errors.New("location is off this file")
	// ErrSizeMismatch is returned when calculator inputs do not share the same raster size
	ErrSizeMismatch = errors.New("input dimensions differ")
	// ErrUnknownMethod is returned for an unsupported layer algebra method
	ErrUnknownMethod = errors.New("unknown layer algebra method")
	// ErrNotCOG is returned when a file fails cloud optimized geotiff validation
	ErrNotCOG = errors.New("not a valid cloud optimized geotiff")
)

// ErrorHandler returns a godal.ErrorHandler that logs gdal debug and warning messages
// to l and turns failures into errors.
func ErrorHandler(l *zap.Logger) godal.ErrorHandler {
	if l == nil {
		l = log.L()
	}
	return func(ec godal.ErrorCategory, code int, msg string) error {
		switch {
		case ec <= godal.CE_Debug:
			l.Debug(msg, zap.Int("code", code))
			return nil
		case ec == godal.CE_Warning:
			l.Warn(msg, zap.Int("code", code))
			return nil
		default:
			return errors.New(msg)
		}
	}
}
