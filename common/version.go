// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
)

// set at build time via -ldflags
var (
	commitHash string
	buildDate  string
)

// Version is a SemVer 2.0.0 build version
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Suffix string // blank for release builds
}

// CurrentVersion is the version baked into this build
var CurrentVersion = Version{Major: 0, Minor: 3, Patch: 0, Suffix: "dev"}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Suffix != "" {
		s += "-" + v.Suffix
		if commitHash != "" {
			s += "+" + strings.ToLower(commitHash)
		}
	}
	return s
}

// BuildVersionString is what "fvledger version" prints
func BuildVersionString() string {
	date := buildDate
	if date == "" {
		date = "unknown"
	}

	b := &strings.Builder{}
	fmt.Fprintf(b, "fvledger v%s %s/%s\n\n", CurrentVersion, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(b, "Build Date: %s\nCommit: %s\nBuilt with: %s\n", date, commitHash, runtime.Version())

	if deps := dependencyList(); len(deps) > 0 {
		b.WriteString("\nDependencies:\n\n")
		b.WriteString(strings.Join(deps, "\n"))
	}
	return b.String()
}

func dependencyList() []string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	deps := make([]string, 0, len(bi.Deps))
	for _, dep := range bi.Deps {
		deps = append(deps, fmt.Sprintf("%s=%q", dep.Path, dep.Version))
	}
	sort.Strings(deps)
	return deps
}
