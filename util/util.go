/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

var Verbosity int
var logFile *os.File

const (
	VERBOSITY_SILENT  = 0
	VERBOSITY_QUIET   = 1
	VERBOSITY_DEFAULT = 2
	VERBOSITY_VERBOSE = 3
)

type TockloadError struct {
	Parent     error
	Text       string
	StackTrace []byte
}

func (te *TockloadError) Error() string {
	return te.Text
}

func (te *TockloadError) Unwrap() error {
	return te.Parent
}

func NewTockloadError(msg string) *TockloadError {
	err := &TockloadError{
		Text:       msg,
		StackTrace: make([]byte, 65536),
	}

	stackLen := runtime.Stack(err.StackTrace, true)
	err.StackTrace = err.StackTrace[:stackLen]

	return err
}

func FmtTockloadError(format string, args ...interface{}) *TockloadError {
	return NewTockloadError(fmt.Sprintf(format, args...))
}

func PreTockloadError(err error, format string, args ...interface{}) *TockloadError {
	baseErr := err.(*TockloadError)
	baseErr.Text = fmt.Sprintf(format, args...) + "; " + baseErr.Text

	return baseErr
}

func ChildTockloadError(parent error) *TockloadError {
	for {
		te, ok := parent.(*TockloadError)
		if !ok || te == nil || te.Parent == nil {
			break
		}
		parent = te.Parent
	}

	te := NewTockloadError(parent.Error())
	te.Parent = parent
	return te
}

func FmtChildTockloadError(parent error, format string,
	args ...interface{}) *TockloadError {

	te := ChildTockloadError(parent)
	te.Text = fmt.Sprintf(format, args...)
	return te
}

// Print Silent, Quiet and Verbose aware status messages to the given file.
func WriteMessage(f *os.File, level int, message string,
	args ...interface{}) {

	if Verbosity >= level {
		str := fmt.Sprintf(message, args...)
		f.WriteString(str)
		f.Sync()

		if logFile != nil {
			logFile.WriteString(str)
		}
	}
}

// Print Silent, Quiet and Verbose aware status messages to stdout.
func StatusMessage(level int, message string, args ...interface{}) {
	WriteMessage(os.Stdout, level, message, args...)
}

// Print Silent, Quiet and Verbose aware status messages to stderr.
func ErrorMessage(level int, message string, args ...interface{}) {
	WriteMessage(os.Stderr, level, message, args...)
}

func Min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func Max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

type logFormatter struct{}

func (f *logFormatter) Format(entry *log.Entry) ([]byte, error) {
	// 2016/03/16 12:50:47.000 [DEBUG] message

	b := &bytes.Buffer{}

	b.WriteString(entry.Time.Format("2006/01/02 15:04:05.000 "))
	b.WriteString("[" + strings.ToUpper(entry.Level.String()) + "] ")
	b.WriteString(entry.Message)
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func initLog(level log.Level, logFilename string) error {
	log.SetLevel(level)

	var writer io.Writer
	if logFilename == "" {
		writer = os.Stderr
	} else {
		var err error
		logFile, err = os.Create(logFilename)
		if err != nil {
			return NewTockloadError(err.Error())
		}

		writer = io.MultiWriter(os.Stderr, logFile)
	}

	log.SetOutput(writer)
	log.SetFormatter(&logFormatter{})

	return nil
}

// Initialize the util module
func Init(logLevel log.Level, logFile string, verbosity int) error {
	// Configure logging twice.  First just configure the filter for stderr;
	// second configure the logfile if there is one.  This needs to happen in
	// two steps so that the log level is configured prior to the attempt to
	// open the log file.  The correct log level needs to be applied to file
	// error messages.
	if err := initLog(logLevel, ""); err != nil {
		return err
	}
	if logFile != "" {
		if err := initLog(logLevel, logFile); err != nil {
			return err
		}
	}

	Verbosity = verbosity

	return nil
}

func AtoiNoOctTry(s string) (int, bool) {
	var runLen int
	for runLen = 0; runLen < len(s)-1; runLen++ {
		if s[runLen] != '0' || s[runLen+1] == 'x' {
			break
		}
	}

	if runLen > 0 {
		s = s[runLen:]
	}

	i, err := strconv.ParseInt(s, 0, 0)
	if err != nil {
		return 0, false
	}

	return int(i), true
}

// Parses an integer, accepting decimal and "0x"-prefixed hex input, but never
// treating a leading zero as an octal indicator.
func AtoiNoOct(s string) (int, error) {
	val, success := AtoiNoOctTry(s)
	if !success {
		return 0, FmtTockloadError("Invalid number: \"%s\"", s)
	}

	return val, nil
}

// ParseUint64NoOct is the 64-bit flavor of AtoiNoOct, for flash addresses.
func ParseUint64NoOct(s string) (uint64, error) {
	stripped := s
	var runLen int
	for runLen = 0; runLen < len(stripped)-1; runLen++ {
		if stripped[runLen] != '0' || stripped[runLen+1] == 'x' {
			break
		}
	}
	if runLen > 0 {
		stripped = stripped[runLen:]
	}

	val, err := strconv.ParseUint(stripped, 0, 64)
	if err != nil {
		return 0, FmtTockloadError("Invalid number: \"%s\"", s)
	}

	return val, nil
}
