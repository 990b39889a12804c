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

//go:build !linux

package input

import (
	"context"

	"github.com/shirou/gopsutil/net"
)

// The file option is only honored on Linux.
var ioCounters = func(ctx context.Context, file string) ([]net.IOCountersStat, error) {
	return net.IOCountersWithContext(ctx, true)
}
