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

//go:build mapperddebuglog

package log

import "fmt"

// Fine writes a formatted message when built with `-tags mapperddebuglog`.
// It is used for per-signal and per-branch tracing that would otherwise
// drown out the operationally relevant Log/Error output.
func Fine(format string, args ...interface{}) {
	logger.Output(2, "fine: "+fmt.Sprintf(format, args...))
}
