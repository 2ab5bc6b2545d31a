/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"testing"

	"diarywriter/internal/config"
)

func TestParsePages(t *testing.T) {
	got, err := parsePages([]string{"3", "1"})
	if err != nil || len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Fatalf("got %v %v", got, err)
	}
	for _, bad := range []string{"0", "-2", "x"} {
		if _, err := parsePages([]string{bad}); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestGridFromFlagsAppliesChangedFlags(t *testing.T) {
	state.cfg = config.Defaults()
	if err := addDiaryCmd.Flags().Parse([]string{"--per-row", "3", "--per-page", "6", "--fit", "cover"}); err != nil {
		t.Fatal(err)
	}
	spec, err := gridFromFlags(addDiaryCmd, true)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Params.ImagesPerRow != 3 || spec.Params.ImagesPerPage != 6 || spec.Fit != "cover" {
		t.Fatalf("spec = %+v", spec)
	}
	if spec.Params.MarginLeft != config.Defaults().Diary.MarginLeft {
		t.Fatalf("unchanged flag overrode config")
	}
}

func TestGridFromFlagsRejectsInvalidGrid(t *testing.T) {
	state.cfg = config.Defaults()
	if err := layoutCmd.Flags().Parse([]string{"--per-row", "5"}); err != nil {
		t.Fatal(err)
	}
	if _, err := gridFromFlags(layoutCmd, true); err == nil {
		t.Fatal("expected invalid grid")
	}
	if _, err := gridFromFlags(layoutCmd, false); err != nil {
		t.Fatalf("layout without validation: %v", err)
	}
}

func TestJoinInts(t *testing.T) {
	if got := joinInts([]int{2, 3, 4}); got != "2, 3, 4" {
		t.Fatalf("got %q", got)
	}
}
