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

package misc

import (
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	if s := SanitizeName("ge-0/0/1 uplink (core)"); s != "ge-0-0-1_uplink_core" {
		t.Errorf("SanitizeName = %q", s)
	}
}

func TestBetterParseDuration(t *testing.T) {
	for s, exp := range map[string]time.Duration{
		"10s":   10 * time.Second,
		"5min":  5 * time.Minute,
		"2hour": 2 * time.Hour,
		"1d":    24 * time.Hour,
		"2w":    336 * time.Hour,
		"1y":    8760 * time.Hour,
		"1mon":  720 * time.Hour,
	} {
		if d, err := BetterParseDuration(s); err != nil || d != exp {
			t.Errorf("BetterParseDuration(%q) = %v, %v", s, d, err)
		}
	}
	if _, err := BetterParseDuration("3x"); err == nil {
		t.Errorf("expected error")
	}
}

func TestParseInterval(t *testing.T) {
	for s, exp := range map[string]time.Duration{
		"1":     time.Second,
		"0.5":   500 * time.Millisecond,
		"250ms": 250 * time.Millisecond,
		"1min":  time.Minute,
	} {
		if d, err := ParseInterval(s); err != nil || d != exp {
			t.Errorf("ParseInterval(%q) = %v, %v", s, d, err)
		}
	}
	for _, s := range []string{"-1", "abc", "-2s"} {
		if _, err := ParseInterval(s); err == nil {
			t.Errorf("ParseInterval(%q) must fail", s)
		}
	}
}
