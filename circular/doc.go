// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package circular provides the fixed-capacity rolling row buffer used for
// the base-bin buffer: O(1) append, with the most recent window of rows
// always readable as one contiguous slice. The staging grid has its own
// type (package staging).
package circular
