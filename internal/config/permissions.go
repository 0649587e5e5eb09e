// Copyright 2025 Tom Barlow
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

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckPermissions returns warnings for a config file, database or their
// directories when other users can read or write them. Both hold
// credentials: the JWT secret, and server headers and env respectively.
// A missing path yields no warnings.
func CheckPermissions(path string) []string {
	var warnings []string

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []string{fmt.Sprintf("unable to check permissions for %s: %v", path, err)}
	}

	perm := info.Mode().Perm()
	kind, recommend := "file", "0600"
	if info.IsDir() {
		kind, recommend = "directory", "0700"
	}

	if perm&0004 != 0 {
		warnings = append(warnings, fmt.Sprintf("%s %s is world-readable (permissions: %o), recommend chmod %s", kind, path, perm, recommend))
	}
	if perm&0002 != 0 {
		warnings = append(warnings, fmt.Sprintf("%s %s is world-writable (permissions: %o), recommend chmod %s", kind, path, perm, recommend))
	}
	if perm&0020 != 0 {
		warnings = append(warnings, fmt.Sprintf("%s %s is group-writable (permissions: %o), recommend chmod %s", kind, path, perm, recommend))
	}
	return warnings
}

// SensitivePaths lists the files and directories CheckPermissions should
// inspect for cfg loaded from configPath.
func (c *Config) SensitivePaths(configPath string) []string {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path != "" {
		paths = append(paths, filepath.Dir(c.Store.Path), c.Store.Path)
	}
	return paths
}
