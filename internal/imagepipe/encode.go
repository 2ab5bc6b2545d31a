/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imagepipe

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"diarywriter/internal/domain"
)

// formats whose bytes are kept as-is when no scaling is needed
var passthrough = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// sniff returns the MIME type of data and the decoded image header. Content
// sniffing comes first; formats it does not know (tiff) are accepted when an
// image decoder recognizes them.
func sniff(data []byte) (string, image.Config, string, error) {
	mime := http.DetectContentType(data)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if !strings.HasPrefix(mime, "image/") && err != nil {
		return "", image.Config{}, "", fmt.Errorf("%w: detected %s", ErrNotImage, mime)
	}
	if err != nil {
		return "", image.Config{}, "", fmt.Errorf("%w: %s header unreadable: %v", ErrNotImage, mime, err)
	}
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/" + format
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", image.Config{}, "", fmt.Errorf("%w: empty image", ErrNotImage)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxPixels {
		return "", image.Config{}, "", fmt.Errorf("%w: %dx%d pixels, limit %d", ErrTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	return mime, cfg, format, nil
}

// encodeResource turns validated bytes into an inline resource. Images larger
// than maxDim on either side are scaled down; formats browsers and PDF writers
// handle poorly are re-encoded as PNG.
func encodeResource(name string, data []byte, maxDim int) (*domain.ImageResource, error) {
	mime, cfg, format, err := sniff(data)
	if err != nil {
		return nil, err
	}
	keep, ok := passthrough[format]
	if ok && (maxDim <= 0 || (cfg.Width <= maxDim && cfg.Height <= maxDim)) {
		return domain.NewImageResource(keep, data, cfg.Width, cfg.Height, name), nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrNotImage, mime, err)
	}
	img := src
	if maxDim > 0 && (cfg.Width > maxDim || cfg.Height > maxDim) {
		img = downscale(src, maxDim)
	}
	var buf bytes.Buffer
	outMIME := "image/png"
	if format == "jpeg" {
		outMIME = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("re-encode image: %w", err)
	}
	b := img.Bounds()
	return domain.NewImageResource(outMIME, buf.Bytes(), b.Dx(), b.Dy(), name), nil
}

// downscale fits src into a maxDim square keeping its aspect ratio.
func downscale(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
