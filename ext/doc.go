// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package ext defines the narrow external-collaborator contracts the engine
// consumes (payload source, channel map, result sink, muon-rate source) and
// the concrete readers/writers for the wire formats described in spec
// section 6.
package ext
