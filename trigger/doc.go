// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package trigger implements the candidate state machine: primary
// (threshold-crossing, 30s escalation window) and fast-response (external
// trigger time) variants, plus the flattened escalation-level table used to
// label a finalized candidate for downstream publication.
package trigger
