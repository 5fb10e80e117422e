// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package metrics defines the engine's optional Prometheus collector
// bundle. A nil *Set is valid and every method on it is a no-op, so
// callers that don't care about metrics never need a sentinel check.
package metrics
