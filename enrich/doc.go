// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package enrich combines a finalized trigger candidate with muon-veto rate
// series and a lightcurve drawn from the base buffer, per spec section 4.6.
package enrich
