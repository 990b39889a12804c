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

// Package misc is misc stuff.
package misc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	sanitizeRegexSpace       = regexp.MustCompile("\\s+")
	sanitizeRegexSlash       = regexp.MustCompile("/")
	sanitizeRegexNonAlphaNum = regexp.MustCompile("[^a-zA-Z_\\-0-9\\.]")
)

// SanitizeName makes an element name safe for use as an identifier,
// e.g. "ge-0/0/1 uplink" becomes "ge-0-0-1_uplink".
func SanitizeName(name string) string {
	name = sanitizeRegexSpace.ReplaceAllString(name, "_")
	name = sanitizeRegexSlash.ReplaceAllString(name, "-")
	return sanitizeRegexNonAlphaNum.ReplaceAllString(name, "")
}

// BetterParseDuration is time.ParseDuration which also understands
// min, hour, d(ay), w(eek), mon(th) and y(ear).
func BetterParseDuration(s string) (time.Duration, error) {

	if strings.HasSuffix(s, "min") {
		s = s[0 : len(s)-2] // min -> m
	} else if strings.HasSuffix(s, "hour") {
		s = s[0 : len(s)-3] // hour -> h
	} else if strings.HasSuffix(s, "mon") {
		fd, err := strconv.ParseFloat(s[0:len(s)-3], 64)
		if err != nil {
			return 0, err
		}
		s = fmt.Sprintf("%vh", fd*30*24)
	}
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	if len(s) > 1 {
		n, nerr := strconv.ParseInt(s[0:len(s)-1], 10, 64)
		if nerr == nil {
			switch s[len(s)-1] {
			case 'd':
				return time.Duration(n*24) * time.Hour, nil
			case 'w':
				return time.Duration(n*168) * time.Hour, nil
			case 'y':
				return time.Duration(n*8760) * time.Hour, nil
			}
		}
	}
	return 0, err
}

// ParseInterval parses an interval given either as a plain number of
// seconds ("0.5") or as a duration ("500ms", "1min").
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("negative interval %q", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := BetterParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %q", s)
	}
	return d, nil
}
