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
/*
Package gdalutils implements the classic gdal/ogr command line utilities on top of
github.com/airbusgeo/godal: pixel checksums, location queries, dataset comparison,
in place metadata edition, raster band calculator, vector datasource reports, vector
layer overlay algebra, and cloud optimized geotiff creation and validation.

All raster/vector I/O and reprojection is delegated to gdal. The functions in this
package expect the relevant gdal drivers to have been registered, e.g. with

	godal.RegisterAll()

gdal messages emitted during an operation are routed to a zap logger (see Logger and
ErrorHandler). Warnings are logged, failures are returned as errors.
*/
package gdalutils
