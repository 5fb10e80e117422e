// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package accum aggregates 250 consecutive 2ms staging columns into one
// 500ms base column, the unit the analysis-window machinery operates on.
package accum
