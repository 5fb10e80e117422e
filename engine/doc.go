// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package engine wires the staging buffer, accumulator, analysis bank,
// trigger state machine, and enrichment into the single-threaded
// cooperative pipeline described in spec section 5: payloads in, result
// messages out, one mutation thread throughout.
package engine
