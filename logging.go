// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

// Options configures a Stream (SPEC_FULL.md §1, ambient configuration
// layer).
type Options struct {
	// OutputDir is the directory streams and the metadata file are
	// written into.
	OutputDir string

	// A custom logger. Defaults to a stderr logger filtered to Error.
	Logger log.Logger
}

func newHelper(opts *Options) *log.Helper {
	if opts != nil && opts.Logger != nil {
		return log.NewHelper(opts.Logger)
	}
	logger := log.NewStdLogger(os.Stderr)
	return log.NewHelper(log.NewFilter(logger, log.FilterLevel(log.LevelError)))
}
