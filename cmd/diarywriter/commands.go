/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"diarywriter/internal/backend"
	"diarywriter/internal/config"
	"diarywriter/internal/domain"
	"diarywriter/internal/editor"
	"diarywriter/internal/export"
	"diarywriter/internal/gridlayout"
	"diarywriter/internal/imagepipe"
	"diarywriter/internal/pagemodel"
	"diarywriter/internal/storage"
	"diarywriter/internal/render"
	"diarywriter/internal/version"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := cmd.Context()
		s, err := openReport(ctx, id, nil)
		if err != nil {
			return err
		}
		if !s.Created() {
			_ = closeReport(ctx)
			return fmt.Errorf("report %s already exists", id)
		}
		if title != "" {
			s.Model().SetTitle(title)
		}
		if err := closeReport(ctx); err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "List the pages of a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			t := s.Tree()
			fmt.Printf("Report: %s", t.ID)
			if t.Title != "" {
				fmt.Printf(" (%s)", t.Title)
			}
			fmt.Printf("\nPages: %d\n", len(t.Pages))
			for _, p := range t.Pages {
				lock := ""
				if p.Locked {
					lock = "  [locked]"
				}
				switch p.Kind {
				case domain.KindImageGrid:
					g := p.Grid
					status := "ok"
					if !g.Layout.IsValid {
						status = "invalid"
					}
					filled := 0
					for _, c := range g.Cells {
						if c.Image != nil {
							filled++
						}
					}
					fmt.Printf("%3d  image grid  %dx%d  %d/%d images  %s%s\n",
						p.Number, g.Layout.Rows, g.Layout.Columns, filled, len(g.Cells), status, lock)
				default:
					words := 0
					for _, b := range p.Blocks {
						words += len(strings.Fields(b.Text))
					}
					fmt.Printf("%3d  text        %d blocks, %d words%s\n", p.Number, len(p.Blocks), words, lock)
				}
			}
			return nil
		})
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Compute the cell geometry of an image grid",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := gridFromFlags(cmd, false)
		if err != nil {
			return err
		}
		r := gridlayout.Compute(spec.Params)
		fmt.Printf("valid: %v\nrows: %d  columns: %d\ncell: %.1f x %.1f mm\navailable: %.1f x %.1f mm\n",
			r.IsValid, r.Rows, r.Columns, r.CellWidth, r.CellHeight, r.AvailableWidth, r.AvailableHeight)
		for _, w := range r.Warnings {
			fmt.Println("warning:", w)
		}
		for _, e := range r.Errors {
			fmt.Println("error:", e)
		}
		if !r.IsValid {
			return r.Err()
		}
		return nil
	},
}

var addTextCmd = &cobra.Command{
	Use:   "add-text ID",
	Short: "Append empty text pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			added, err := s.AppendText(count)
			if err != nil {
				return err
			}
			fmt.Println("added pages", joinInts(added))
			return nil
		})
	},
}

var addDiaryCmd = &cobra.Command{
	Use:   "add-diary ID",
	Short: "Append image-grid diary pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		spec, err := gridFromFlags(cmd, true)
		if err != nil {
			return err
		}
		if h, _ := cmd.Flags().GetString("header"); h != "" {
			spec.Header = h
		}
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			added, err := s.AppendDiary(count, spec)
			if err != nil {
				return err
			}
			fmt.Println("added pages", joinInts(added))
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID PAGE...",
	Short: "Delete pages and renumber the rest",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, err := parsePages(args[1:])
		if err != nil {
			return err
		}
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			before := s.Model().TotalPages()
			remap, err := s.Delete(pages)
			if err != nil {
				return err
			}
			fmt.Printf("deleted pages %s\n", joinInts(remap.Deleted(before)))
			for _, old := range remap.Moved() {
				fmt.Printf("page %d is now page %d\n", old, remap[old])
			}
			fmt.Printf("%d pages remain\n", s.Model().TotalPages())
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports held in the local cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, closeFn, err := storage.NewCacheFromConfig(state.cfg.Store)
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()
		lister, ok := cache.(storage.Lister)
		if !ok {
			return fmt.Errorf("cache %q cannot list reports", state.cfg.Store.Cache)
		}
		ids, err := lister.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var setTextCmd = &cobra.Command{
	Use:   "set-text ID PAGE",
	Short: "Replace the HTML of a text page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, err := parsePages(args[1:])
		if err != nil {
			return err
		}
		html, _ := cmd.Flags().GetString("html")
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			b, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			html = string(b)
		}
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			return s.SetText(pages[0], html)
		})
	},
}

var setHeaderCmd = &cobra.Command{
	Use:   "set-header ID PAGE TEXT",
	Short: "Replace the header of an image-grid page",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, err := parsePages(args[1:2])
		if err != nil {
			return err
		}
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			return s.SetHeader(pages[0], args[2])
		})
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach ID PAGE SLOT FILE",
	Short: "Place an image into a slot of an image-grid page",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, err := parsePages(args[1:2])
		if err != nil {
			return err
		}
		slot, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid slot %q", args[2])
		}
		return withReport(cmd, args[0], imagepipe.PathPicker(args[3]), func(s *editor.Session) error {
			if _, err := s.Navigate(pages[0]); err != nil {
				return err
			}
			a, err := s.ClickSlot(cmd.Context(), slot)
			if err != nil {
				return err
			}
			if err := a.Wait(); err != nil {
				return err
			}
			res := a.Resource()
			fmt.Printf("attached %s (%dx%d, %s) to page %d slot %d\n", res.Name, res.Width, res.Height, res.MIME, pages[0], slot)
			return nil
		})
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock ID PAGE...",
	Short: "Make pages read-only",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockPages(cmd, args, true)
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock ID PAGE...",
	Short: "Make pages editable",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockPages(cmd, args, false)
	},
}

func lockPages(cmd *cobra.Command, args []string, lock bool) error {
	pages, err := parsePages(args[1:])
	if err != nil {
		return err
	}
	return withReport(cmd, args[0], nil, func(s *editor.Session) error {
		for _, n := range pages {
			op := s.Unlock
			if lock {
				op = s.Lock
			}
			if err := op(n); err != nil {
				return err
			}
		}
		return nil
	})
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a report",
}

var exportPDFCmd = &cobra.Command{
	Use:   "pdf ID OUT.pdf",
	Short: "Export as an A4 PDF",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, _ := cmd.Flags().GetIntSlice("pages")
		borders, _ := cmd.Flags().GetBool("borders")
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			if err := export.ExportPDF(s.Tree(), args[1], export.PDFOptions{Pages: pages, DrawCellBorders: borders}); err != nil {
				return err
			}
			fmt.Println("wrote", args[1])
			return nil
		})
	},
}

var exportPNGCmd = &cobra.Command{
	Use:   "png ID OUTDIR",
	Short: "Export one PNG per page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt := pngOptions(cmd)
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			paths, err := export.ExportPNG(s.Tree(), args[1], opt)
			for _, p := range paths {
				fmt.Println("wrote", p)
			}
			return err
		})
	},
}

var exportZipCmd = &cobra.Command{
	Use:   "zip ID OUT.zip",
	Short: "Export page images and the report JSON as a zip archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt := pngOptions(cmd)
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			if err := export.ExportArchive(s.Tree(), args[1], opt); err != nil {
				return err
			}
			fmt.Println("wrote", args[1])
			return nil
		})
	},
}

var exportPresetCmd = &cobra.Command{
	Use:   "preset ID web|print",
	Short: "Export several formats with a named preset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, _ := cmd.Flags().GetIntSlice("pages")
		formats, _ := cmd.Flags().GetStringSlice("formats")
		dpi, _ := cmd.Flags().GetInt("dpi")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = state.cfg.Export.OutDir
		}
		preset := export.PresetName(args[1])
		if preset != export.PresetWeb && preset != export.PresetPrint {
			return fmt.Errorf("unknown preset %q", args[1])
		}
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			paths, err := export.BatchExport(s.Tree(), export.BatchOptions{
				Preset: preset, Formats: formats, Pages: pages, DPIOverride: dpi, OutDir: out,
			})
			for _, p := range paths {
				fmt.Println("wrote", p)
			}
			return err
		})
	},
}

var printCmd = &cobra.Command{
	Use:   "print ID OUT.html",
	Short: "Write the print document (A4 sheets in millimeters)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReport(cmd, args[0], nil, func(s *editor.Session) error {
			html, err := render.PrintHTML(s.Tree())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(args[1]), 0o755); err != nil {
				return err
			}
			return os.WriteFile(args[1], []byte(html), 0o644)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference reports server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = state.cfg.Server.Addr
		}
		dsn, _ := cmd.Flags().GetString("db")
		if dsn == "" {
			dsn = state.cfg.Server.DatabaseURL
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var repo backend.Repository = backend.NewMemoryRepository()
		if dsn != "" {
			pg, err := backend.OpenPG(ctx, dsn)
			if err != nil {
				return err
			}
			defer pg.Close()
			repo = pg
		}
		return backend.NewServer(repo, state.secrets.ServerSecret).Serve(ctx, addr)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("diarywriter", version.String())
	},
}

func addGridFlags(c *cobra.Command) {
	d := config.Defaults().Diary
	f := c.Flags()
	f.Int("per-page", d.ImagesPerPage, "Images per page (1-20)")
	f.Int("per-row", d.ImagesPerRow, "Images per row (1-4)")
	f.Float64("margin-left", d.MarginLeft, "Left margin in mm")
	f.Float64("margin-right", d.MarginRight, "Right margin in mm")
	f.Float64("margin-bottom", d.MarginBottom, "Bottom margin in mm")
	f.Float64("margin-header", d.MarginHeader, "Header band in mm")
	f.String("ratio", d.AspectRatio, "Cell aspect ratio W:H")
	f.Bool("center", d.CenterHorizontally, "Center the grid horizontally")
	f.String("fit", d.Fit, "Image fit: contain or cover")
}

// gridFromFlags starts from the configured diary defaults and applies the
// flags the user set. With validate the layout engine must accept the result.
func gridFromFlags(cmd *cobra.Command, validate bool) (pagemodel.GridSpec, error) {
	d := state.cfg.Diary
	f := cmd.Flags()
	if f.Changed("per-page") {
		d.ImagesPerPage, _ = f.GetInt("per-page")
	}
	if f.Changed("per-row") {
		d.ImagesPerRow, _ = f.GetInt("per-row")
	}
	if f.Changed("margin-left") {
		d.MarginLeft, _ = f.GetFloat64("margin-left")
	}
	if f.Changed("margin-right") {
		d.MarginRight, _ = f.GetFloat64("margin-right")
	}
	if f.Changed("margin-bottom") {
		d.MarginBottom, _ = f.GetFloat64("margin-bottom")
	}
	if f.Changed("margin-header") {
		d.MarginHeader, _ = f.GetFloat64("margin-header")
	}
	if f.Changed("ratio") {
		d.AspectRatio, _ = f.GetString("ratio")
	}
	if f.Changed("center") {
		d.CenterHorizontally, _ = f.GetBool("center")
	}
	if f.Changed("fit") {
		d.Fit, _ = f.GetString("fit")
	}
	if !validate {
		return pagemodel.GridSpec{Params: d.Params, Fit: domain.FitMode(d.Fit).Normalize()}, nil
	}
	return d.GridSpec()
}

func pngOptions(cmd *cobra.Command) export.PNGOptions {
	pages, _ := cmd.Flags().GetIntSlice("pages")
	dpi, _ := cmd.Flags().GetInt("dpi")
	if dpi <= 0 {
		dpi = state.cfg.Export.DPI
	}
	return export.PNGOptions{DPI: dpi, Pages: pages}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
