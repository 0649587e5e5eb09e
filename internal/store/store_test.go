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

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatch_Apply(t *testing.T) {
	srv := &Server{
		Name:    "before",
		Enabled: true,
		Status:  StatusConnected,
		Transport: Transport{
			Type: TransportSSE,
			URL:  "http://a",
		},
	}

	status := StatusError
	Patch{Status: &status, ErrorMessage: Ptr("boom")}.Apply(srv)

	assert.Equal(t, "before", srv.Name)
	assert.True(t, srv.Enabled)
	assert.Equal(t, StatusError, srv.Status)
	assert.Equal(t, "boom", srv.ErrorMessage)
}

func TestPatch_IsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	assert.False(t, Patch{Enabled: Ptr(false)}.IsEmpty())
}

func TestServer_CloneIsDeep(t *testing.T) {
	orig := &Server{
		Transport: Transport{
			Type:    TransportStdio,
			Command: "run",
			Args:    []string{"a"},
			Env:     []KeyValue{{Key: "K", Value: "V"}},
		},
	}

	c := orig.Clone()
	c.Transport.Args[0] = "b"
	c.Transport.Env[0].Value = "changed"

	assert.Equal(t, "a", orig.Transport.Args[0])
	assert.Equal(t, "V", orig.Transport.Env[0].Value)
	assert.Nil(t, (*Server)(nil).Clone())
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusDisconnected, StatusConnecting, StatusConnected, StatusError} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("paused").Valid())
}
