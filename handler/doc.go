// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package handler owns the base-bin rolling buffer and the bank of
// overlapping analyses: it drives each analysis's sum update on every new
// base bin, maintains the per-analysis xi history, and reports which
// analyses became triggerable this cycle.
package handler
