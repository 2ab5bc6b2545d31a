/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imagepipe

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a binary chosen by the user. The pipeline always closes Body.
type File struct {
	Name string
	// Size is the announced size in bytes, or -1 when unknown.
	Size int64
	Body io.ReadCloser
}

// FilePicker opens a file-selection surface. It returns ErrCanceled when the
// user dismisses it and should honor ctx cancellation.
type FilePicker interface {
	Pick(ctx context.Context) (File, error)
}

// PickerFunc adapts a function to FilePicker.
type PickerFunc func(ctx context.Context) (File, error)

func (f PickerFunc) Pick(ctx context.Context) (File, error) { return f(ctx) }

// PathPicker picks a fixed path from the local file system. An empty path
// counts as a canceled selection.
type PathPicker string

func (p PathPicker) Pick(ctx context.Context) (File, error) {
	if p == "" {
		return File{}, ErrCanceled
	}
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	f, err := os.Open(string(p))
	if err != nil {
		return File{}, fmt.Errorf("open image: %w", err)
	}
	size := int64(-1)
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return File{Name: filepath.Base(string(p)), Size: size, Body: f}, nil
}
