// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package run

import (
	"encoding/csv"
	"fmt"
	"os"
)

// InjectionLog is the append-only CSV log of counted injections.
type InjectionLog struct {
	f *os.File
	w *csv.Writer
}

var injectionHeader = []string{
	"timestamp", "netPath", "preFlipValue", "postFlipValue", "outputsChanged", "stateChanged",
}

func OpenInjectionLog(filename string) (*InjectionLog, error) {
	f, w, err := openCSV(filename, injectionHeader)
	if err != nil {
		return nil, err
	}
	return &InjectionLog{f: f, w: w}, nil
}

func (l *InjectionLog) Append(timestamp, netPath, pre, post, outputs, state string) error {
	if err := l.w.Write([]string{timestamp, netPath, pre, post, outputs, state}); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *InjectionLog) Close() error {
	l.w.Flush()
	return l.f.Close()
}

// VulnLog is the append-only CSV log of resolved seeds, one row per seed.
type VulnLog struct {
	f *os.File
	w *csv.Writer
}

var vulnHeader = []string{"seed", "terminationCause", "faultCount", "lastFlippedNetPath"}

func OpenVulnLog(filename string) (*VulnLog, error) {
	f, w, err := openCSV(filename, vulnHeader)
	if err != nil {
		return nil, err
	}
	return &VulnLog{f: f, w: w}, nil
}

func (l *VulnLog) Append(seed int64, cause string, faultCount uint64, netPath string) error {
	row := []string{fmt.Sprint(seed), cause, fmt.Sprint(faultCount), netPath}
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *VulnLog) Close() error {
	l.w.Flush()
	return l.f.Close()
}

func openCSV(filename string, header []string) (*os.File, *csv.Writer, error) {
	info, statErr := os.Stat(filename)
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log %v: %w", filename, err)
	}
	w := csv.NewWriter(f)
	if statErr != nil || info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, nil, err
		}
		w.Flush()
	}
	return f, w, nil
}
