//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
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

package element

import (
	"fmt"
	"path"
	"strings"
)

// Policy decides which element names are monitored. It is built from
// a comma separated list of shell patterns, a leading ! denies
// matching names. A name is allowed if no deny pattern matches it and
// either it matches an allow pattern or there are no allow patterns.
type Policy struct {
	allow, deny []string
}

// ParsePolicy parses a policy string such as "eth*,lo,!eth1".
func ParsePolicy(s string) (*Policy, error) {
	p := &Policy{}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		deny := strings.HasPrefix(tok, "!")
		if deny {
			tok = tok[1:]
		}
		if _, err := path.Match(tok, ""); err != nil {
			return nil, fmt.Errorf("invalid policy pattern %q: %v", tok, err)
		}
		if deny {
			p.deny = append(p.deny, tok)
		} else {
			p.allow = append(p.allow, tok)
		}
	}
	return p, nil
}

func match(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// Allow reports whether name passes the policy. A nil policy allows
// everything.
func (p *Policy) Allow(name string) bool {
	if p == nil {
		return true
	}
	if match(p.deny, name) {
		return false
	}
	return len(p.allow) == 0 || match(p.allow, name)
}
