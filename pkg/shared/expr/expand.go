/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package expr

import (
	"strings"
)

// expandHeaders nests dotted header names, so "trace.id" is reachable as headers.trace.id. A name that
// is both a value and a prefix, e.g. "a" and "a.b", keeps the nested form under its own name.
func expandHeaders(headers map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(headers))
	for name, v := range headers {
		parts := strings.Split(name, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				m[p] = next
			}
			m = next
		}
		last := parts[len(parts)-1]
		if _, nested := m[last].(map[string]interface{}); !nested {
			m[last] = v
		}
	}
	return out
}
