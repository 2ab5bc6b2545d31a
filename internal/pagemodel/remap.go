/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pagemodel

import "sort"

// Remap maps the old number of every surviving page to its new number after a
// deletion. Deleted pages are absent.
type Remap map[int]int

// Lookup returns the new number of old page n.
func (r Remap) Lookup(n int) (int, bool) {
	nn, ok := r[n]
	return nn, ok
}

// Deleted returns the old numbers in 1..oldTotal that did not survive, ascending.
func (r Remap) Deleted(oldTotal int) []int {
	var out []int
	for n := 1; n <= oldTotal; n++ {
		if _, ok := r[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Moved returns the old numbers whose page number changed, ascending.
func (r Remap) Moved() []int {
	var out []int
	for old, nn := range r {
		if old != nn {
			out = append(out, old)
		}
	}
	sort.Ints(out)
	return out
}
