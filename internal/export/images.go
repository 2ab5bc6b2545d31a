/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"diarywriter/internal/domain"
)

// decodeResource returns the pixels of an inline image.
func decodeResource(r *domain.ImageResource) (image.Image, error) {
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.Name, err)
	}
	return img, nil
}

// pdfImage returns bytes and a gofpdf image type for r. Formats the PDF writer
// cannot embed directly are converted to PNG.
func pdfImage(r *domain.ImageResource) ([]byte, string, error) {
	data, err := r.Bytes()
	if err != nil {
		return nil, "", err
	}
	switch r.MIME {
	case "image/png":
		return data, "PNG", nil
	case "image/jpeg":
		return data, "JPG", nil
	case "image/gif":
		return data, "GIF", nil
	}
	img, err := decodeResource(r)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("convert %s to png: %w", r.Name, err)
	}
	return buf.Bytes(), "PNG", nil
}

// pageSelection returns the page views to export; an empty filter selects all.
func pageSelection[T any](pages []T, number func(T) int, only []int) []T {
	if len(only) == 0 {
		return pages
	}
	want := make(map[int]bool, len(only))
	for _, n := range only {
		want[n] = true
	}
	var out []T
	for _, p := range pages {
		if want[number(p)] {
			out = append(out, p)
		}
	}
	return out
}
