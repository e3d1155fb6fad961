// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the daemon's logging functions. Unlike barista's
// logging package (which is a no-op unless built with a debug tag, since a
// status bar's logs have nowhere useful to go by default), Log and Error
// always write: a directory service that silently drops peer errors is
// useless to operate. Fine remains gated behind a build tag for verbose
// per-signal tracing, matching barista's --finelog convention.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

var logger = log.New(os.Stderr, "", log.LstdFlags)

// SetOutput redirects the logger's output stream.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Log writes a formatted message unconditionally.
func Log(format string, args ...interface{}) {
	logger.Output(2, fmt.Sprintf(format, args...))
}

// Error writes a formatted message, prefixed to stand out in a log stream
// shared with Log/Fine output.
func Error(format string, args ...interface{}) {
	logger.Output(2, "error: "+fmt.Sprintf(format, args...))
}
