// Copyright 2015 Google Inc. All Rights Reserved.
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

package qrtr

import (
	"flag"
	"io"
	"log"
	"os"
	"sync"
)

var fEnableDebug = flag.Bool(
	"qrtr.debug",
	false,
	"Write qrtr debugging messages to stderr.")

var gLogger *log.Logger
var gLoggerOnce sync.Once

func initLogger() {
	if !flag.Parsed() {
		panic("initLogger called before flags available.")
	}

	var writer io.Writer = io.Discard
	if *fEnableDebug {
		writer = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	gLogger = log.New(writer, "qrtr: ", flags)
}

// getLogger returns the package-wide debug logger, lazily created on first
// use so that it honors whatever value -qrtr.debug has once flags are
// parsed. Observers and Clients that aren't given an explicit debug logger
// via WithDebugLogger fall back to this one.
func getLogger() *log.Logger {
	gLoggerOnce.Do(initLogger)
	return gLogger
}

// defaultErrorLogger is always active, independent of -qrtr.debug: it is
// where InvariantViolation and SocketIO diagnostics required by §7 go
// unless the caller supplies its own via WithErrorLogger.
func defaultErrorLogger() *log.Logger {
	return log.New(os.Stderr, "qrtr: ", log.Ldate|log.Ltime|log.Lmicroseconds)
}
