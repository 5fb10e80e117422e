// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package staging resamples irregularly timestamped per-tick scaler counts
// onto a uniform 2ms grid (the "rebinner"), and holds them in a rolling
// write-ahead ring until the engine is ready to fold each column into the
// 500ms base bin.
package staging
