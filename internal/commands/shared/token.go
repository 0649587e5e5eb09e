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

package shared

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/maxbaines/ai-chatbot-plus/internal/client"
)

// keychainService is the service name used for keychain entries.
const keychainService = "mcpctl"

// ErrNoToken is returned by DeleteToken when nothing is stored.
var ErrNoToken = errors.New("no token stored")

// SaveToken stores token for the daemon at addr in the system keychain.
func SaveToken(addr, token string) error {
	base, err := client.NormalizeAddr(addr)
	if err != nil {
		return err
	}
	if err := keyring.Set(keychainService, base, token); err != nil {
		return fmt.Errorf("keychain error: %w", err)
	}
	return nil
}

// LoadToken returns the stored token for addr, or "" when there is none.
func LoadToken(addr string) (string, error) {
	base, err := client.NormalizeAddr(addr)
	if err != nil {
		return "", err
	}
	token, err := keyring.Get(keychainService, base)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("keychain error: %w", err)
	}
	return token, nil
}

// DeleteToken removes the stored token for addr.
func DeleteToken(addr string) error {
	base, err := client.NormalizeAddr(addr)
	if err != nil {
		return err
	}
	if err := keyring.Delete(keychainService, base); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNoToken
		}
		return fmt.Errorf("keychain error: %w", err)
	}
	return nil
}

// ResolveAddr returns the daemon address from --addr, then MCPD_ADDR.
func ResolveAddr() string {
	if addrFlag != "" {
		return addrFlag
	}
	return os.Getenv(client.AddrEnv)
}

// ResolveToken returns the bearer token from --token, then MCPD_TOKEN, then
// the keychain. A keychain that cannot be reached counts as no token.
func ResolveToken(addr string) string {
	if tokenFlag != "" {
		return tokenFlag
	}
	if env := os.Getenv(client.TokenEnv); env != "" {
		return env
	}
	token, err := LoadToken(addr)
	if err != nil {
		return ""
	}
	return token
}

// NewClient builds a daemon client from the global flags.
func NewClient() (*client.Client, error) {
	addr := ResolveAddr()
	opts := []client.Option{client.WithBaseURL(addr)}
	if token := ResolveToken(addr); token != "" {
		opts = append(opts, client.WithToken(token))
	}
	c, err := client.New(opts...)
	if err != nil {
		return nil, NewUsageError("invalid daemon address", err)
	}
	return c, nil
}
