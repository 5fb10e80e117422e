// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package analysis implements one configured (binsize, offset) sliding
// window over the base-bin buffer: incremental background/search sums,
// per-channel qualification, and the collective test statistic xi.
package analysis
