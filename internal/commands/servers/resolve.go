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

package servers

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxbaines/ai-chatbot-plus/internal/client"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// resolve finds a server by id, then by exact name, then by unique id
// prefix.
func resolve(ctx context.Context, c *client.Client, ref string) (*store.Server, error) {
	s, err := c.GetServer(ctx, ref)
	if err == nil {
		return s, nil
	}
	if !client.IsNotFound(err) {
		return nil, err
	}

	list, lerr := c.ListServers(ctx, client.ListOptions{})
	if lerr != nil {
		return nil, lerr
	}

	var byName, byPrefix []*store.Server
	for _, s := range list.Servers {
		if s.Name == ref {
			byName = append(byName, s)
		}
		if strings.HasPrefix(s.ID, ref) {
			byPrefix = append(byPrefix, s)
		}
	}
	for _, matches := range [][]*store.Server{byName, byPrefix} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return nil, shared.NewUsageError(fmt.Sprintf("%q matches %d servers; use the full id", ref, len(matches)), nil)
		}
	}
	return nil, err
}
