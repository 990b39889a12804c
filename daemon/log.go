//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
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

package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

func init() {
	log.SetPrefix(fmt.Sprintf("[%d] ", os.Getpid()))
}

var timeNow = func() time.Time {
	return time.Now()
}

var osRename = func(a, b string) error {
	return os.Rename(a, b)
}

var (
	logMu   sync.Mutex
	logFile *os.File
)

var renameLogFile = func(logPath string) {
	logDir, logFile := filepath.Split(logPath)
	filename := timeNow().Format(logFile + "-20060102_150405")
	fullpath := filepath.Join(logDir, filename)
	log.Printf("Starting new log file, current log archived as: '%s'", fullpath)
	if err := osRename(logPath, fullpath); err != nil {
		log.Printf("Unable to archive log file: %v", err)
	}
}

// cycleLogFile archives the current log file, if any, and starts a
// new one.
var cycleLogFile = func(logPath string) error {
	logMu.Lock()
	defer logMu.Unlock()

	if logFile != nil {
		renameLogFile(logPath)
	}

	file, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0666) // open with O_SYNC
	if err != nil {
		return fmt.Errorf("Unable to open log file '%s', %v", logPath, err)
	}

	log.SetOutput(file)
	if logFile != nil {
		logFile.Close()
	}
	logFile = file
	return nil
}

// logFileCycler opens the log file and, if logCycle is not zero,
// cycles it periodically until ctx is done.
var logFileCycler = func(ctx context.Context, logPath string, logCycle time.Duration) error {

	if err := cycleLogFile(logPath); err != nil { // Initial cycle
		return err
	}
	if logCycle <= 0 {
		return nil
	}

	cycle := cycleLogFile
	go func() { // Periodic cycling
		t := time.NewTicker(logCycle)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := cycle(logPath); err != nil {
					log.Printf("%v", err)
				}
			}
		}
	}()
	return nil
}

func closeLog() {
	logMu.Lock()
	defer logMu.Unlock()
	log.SetOutput(os.Stderr)
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
