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

// Package shared holds state and helpers used by every mcpctl command.
package shared

// Global flag values - set by root command
var (
	addrFlag    string
	tokenFlag   string
	jsonFlag    bool
	verboseFlag bool

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Flags holds pointers to the global flag variables for binding.
type Flags struct {
	Addr    *string
	Token   *string
	JSON    *bool
	Verbose *bool
}

// RegisterFlagPointers returns pointers to flag variables for binding.
// Called by root command to register flags.
func RegisterFlagPointers() Flags {
	return Flags{Addr: &addrFlag, Token: &tokenFlag, JSON: &jsonFlag, Verbose: &verboseFlag}
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetAddr returns the --addr flag value
func GetAddr() string {
	return addrFlag
}

// GetToken returns the --token flag value
func GetToken() string {
	return tokenFlag
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonFlag
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verboseFlag
}

// ResetFlagsForTest clears the global flags.
func ResetFlagsForTest() {
	addrFlag, tokenFlag, jsonFlag, verboseFlag = "", "", false, false
}
