// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package config builds the engine's immutable Config value from parsed
// command-line flags or a decoded process-json payload, validating and
// normalizing options per spec sections 4.4 and 9.
package config
