// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides functionality similar to the standard log package with
// some extensions:
//   - verbosity levels
//   - a global verbosity setting shared by all packages
//   - ability to cache recent output in memory for inclusion in reports
package log

import (
	"bytes"
	"flag"
	"fmt"
	golog "log"
	"sync"
	"time"
)

var (
	flagV       = flag.Int("vv", 0, "verbosity")
	mu          sync.Mutex
	cacheMem    int
	cacheMaxMem int
	cachePos    int
	cacheLines  []string
	prependTime = true // for testing
)

// EnableLogCaching enables in-memory caching of log output.
// Caches up to maxLines lines, but no more than maxMem bytes.
// Cached output can later be queried with CachedLogOutput.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cacheLines != nil {
		Fatalf("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	cacheMaxMem = maxMem
	cacheLines = make([]string, maxLines)
}

// CachedLogOutput retrieves cached log output.
func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	buf := new(bytes.Buffer)
	for i := range cacheLines {
		pos := (cachePos + i) % len(cacheLines)
		if cacheLines[pos] == "" {
			continue
		}
		buf.WriteString(cacheLines[pos])
		buf.WriteByte('\n')
	}
	return buf.String()
}

// V reports whether logging at verbosity v is enabled.
// Useful to guard expensive message construction.
func V(v int) bool {
	return v <= *flagV
}

func Logf(v int, msg string, args ...interface{}) {
	mu.Lock()
	doLog := v <= *flagV
	if cacheLines != nil && v <= 1 {
		cacheMem -= len(cacheLines[cachePos])
		if cacheMem < 0 {
			panic("log cache size underflow")
		}
		timeStr := ""
		if prependTime {
			timeStr = time.Now().Format("2006/01/02 15:04:05 ")
		}
		cacheLines[cachePos] = fmt.Sprintf(timeStr+msg, args...)
		cacheMem += len(cacheLines[cachePos])
		cachePos = (cachePos + 1) % len(cacheLines)
		for i := 0; i < len(cacheLines)-1 && cacheMem > cacheMaxMem; i++ {
			pos := (cachePos + i) % len(cacheLines)
			cacheMem -= len(cacheLines[pos])
			cacheLines[pos] = ""
		}
		if cacheMem < 0 {
			panic("log cache size underflow")
		}
	}
	mu.Unlock()

	if doLog {
		golog.Printf(msg, args...)
	}
}

func Fatal(err error) {
	golog.Fatal(err)
}

func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}

// VerboseWriter is an io.Writer that forwards everything to Logf
// at the given verbosity.
type VerboseWriter int

func (w VerboseWriter) Write(data []byte) (int, error) {
	Logf(int(w), "%s", data)
	return len(data), nil
}
