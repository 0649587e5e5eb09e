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

// Package secrets detects and masks credentials carried in MCP server
// headers and environment variables.
package secrets

import (
	"sort"
	"strings"
)

// Masker detects and masks sensitive values in strings.
// It uses name patterns to decide which headers and variables hold secrets.
type Masker struct {
	// suffixes mark a variable name as secret (e.g., _TOKEN, _SECRET)
	suffixes []string

	// names are header names that always carry credentials
	names map[string]bool

	// secrets are known values to mask, longest first
	secrets []string
}

// NewMasker creates a new secret masker with default patterns.
func NewMasker() *Masker {
	return &Masker{
		suffixes: []string{
			"_TOKEN",
			"_SECRET",
			"_KEY",
			"_PASSWORD",
			"_PASS",
			"_PWD",
		},
		names: map[string]bool{
			"AUTHORIZATION":       true,
			"PROXY-AUTHORIZATION": true,
			"COOKIE":              true,
			"X-API-KEY":           true,
			"API-KEY":             true,
		},
	}
}

// IsSecretName reports whether a header or variable named name likely
// holds a credential.
func (m *Masker) IsSecretName(name string) bool {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if m.names[upper] {
		return true
	}
	upper = strings.ReplaceAll(upper, "-", "_")
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// AddSecret registers a value to be masked.
func (m *Masker) AddSecret(value string) {
	if value == "" {
		return
	}
	for _, s := range m.secrets {
		if s == value {
			return
		}
	}
	m.secrets = append(m.secrets, value)
	// Longer values first so a secret containing another is replaced whole.
	sort.SliceStable(m.secrets, func(i, j int) bool {
		return len(m.secrets[i]) > len(m.secrets[j])
	})
}

// Mask replaces all known secrets in s with "***".
func (m *Masker) Mask(s string) string {
	for _, secret := range m.secrets {
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

// MaskValue returns value for display under name: unchanged when the name
// is not secret, otherwise reduced to a two character hint.
func (m *Masker) MaskValue(name, value string) string {
	if !m.IsSecretName(name) {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + strings.Repeat("*", 6)
}
