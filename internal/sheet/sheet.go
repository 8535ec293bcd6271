// Package sheet renders a user's records into the styled xlsx cargo document.
package sheet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/erazemk/tovor/internal/imaging"
	"github.com/erazemk/tovor/internal/media"
	"github.com/erazemk/tovor/internal/model"
)

// Extension is the file extension of every generated document.
const Extension = ".xlsx"

const (
	sheetName = "Sheet1"

	titleRow  = 1
	subRow    = 2
	headerRow = 4
	firstRow  = 5

	minColWidth = 10
	maxColWidth = 50
	// imageWidth is the character width an embedded thumbnail counts as.
	imageWidth = 16

	// A sanitized name is cut to maxNameRunes runes and maxNameBytes bytes so
	// that with Extension it stays under the common 255-byte file name limit.
	maxNameRunes = 100
	maxNameBytes = 200
)

// Layout holds the configurable look of the document.
type Layout struct {
	Title        string
	Subtitle     string
	AccentColor  string
	HeaderColor  string
	ThumbnailMax int
}

// DefaultLayout returns the stock cargo document look.
func DefaultLayout() Layout {
	return Layout{
		Title:        "MAGEZ",
		Subtitle:     "Trade & Logistics Company",
		AccentColor:  "#FF0000",
		HeaderColor:  "#808080",
		ThumbnailMax: imaging.DefaultThumbnailMax,
	}
}

// Media is the read side of the media store.
type Media interface {
	Open(ref string) (io.ReadCloser, error)
	IsDisplayableImage(ref string) bool
}

// Generator builds documents from record collections.
type Generator struct {
	media  Media
	layout Layout
}

// NewGenerator returns a generator reading attachments from m.
func NewGenerator(m Media, layout Layout) *Generator {
	if layout.ThumbnailMax <= 0 {
		layout.ThumbnailMax = imaging.DefaultThumbnailMax
	}
	return &Generator{media: m, layout: layout}
}

// Generate renders records in order and returns the encoded workbook. An
// empty collection yields a document with the header rows only. Attachments
// that cannot be embedded degrade to their stored filename.
func (g *Generator) Generate(ctx context.Context, records []model.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := g.newStyles(f)
	if err != nil {
		return nil, err
	}

	if err := g.writeBanner(f, styles); err != nil {
		return nil, err
	}

	widths := make([]int, len(model.Fields))
	for i, field := range model.Fields {
		widths[i] = utf8.RuneCountInString(field.Label())
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.writeRecord(f, styles, firstRow+i, rec, widths); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheetName, col, col, float64(ColumnWidth(w))); err != nil {
			return nil, fmt.Errorf("setting width of %s: %w", col, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ColumnWidth maps the longest rendered value of a column, in characters,
// to its width.
func ColumnWidth(longest int) int {
	return min(max(longest+2, minColWidth), maxColWidth)
}

type styleSet struct {
	banner int
	header int
	cell   int
}

func (g *Generator) newStyles(f *excelize.File) (styleSet, error) {
	var s styleSet
	var err error

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}

	s.banner, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 14},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{g.layout.AccentColor}},
		Alignment: center,
	})
	if err != nil {
		return s, fmt.Errorf("creating banner style: %w", err)
	}

	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{g.layout.HeaderColor}},
		Alignment: center,
		Border:    border,
	})
	if err != nil {
		return s, fmt.Errorf("creating header style: %w", err)
	}

	s.cell, err = f.NewStyle(&excelize.Style{Alignment: center, Border: border})
	if err != nil {
		return s, fmt.Errorf("creating cell style: %w", err)
	}
	return s, nil
}

func (g *Generator) writeBanner(f *excelize.File, styles styleSet) error {
	last, _ := excelize.ColumnNumberToName(len(model.Fields))

	for _, band := range []struct {
		row  int
		text string
	}{
		{titleRow, g.layout.Title},
		{subRow, g.layout.Subtitle},
	} {
		from := "A" + strconv.Itoa(band.row)
		to := last + strconv.Itoa(band.row)
		if err := f.MergeCell(sheetName, from, to); err != nil {
			return fmt.Errorf("merging %s:%s: %w", from, to, err)
		}
		if err := f.SetCellStr(sheetName, from, band.text); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, from, to, styles.banner); err != nil {
			return err
		}
	}
	if err := f.SetRowHeight(sheetName, titleRow, 24); err != nil {
		return err
	}

	for i, field := range model.Fields {
		cell, err := excelize.CoordinatesToCellName(i+1, headerRow)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheetName, cell, field.Label()); err != nil {
			return err
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	end, _ := excelize.CoordinatesToCellName(len(model.Fields), headerRow)
	return f.SetCellStyle(sheetName, first, end, styles.header)
}

// writeRecord fills one data row and widens the running column widths.
func (g *Generator) writeRecord(f *excelize.File, styles styleSet, row int, rec model.Record, widths []int) error {
	photo, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}

	if rec.HasImage() {
		thumb := g.thumbnail(rec.ImageRef)
		if thumb != nil {
			err := f.AddPictureFromBytes(sheetName, photo, &excelize.Picture{
				Extension: ".png",
				File:      thumb.Data,
				Format: &excelize.GraphicOptions{
					OffsetX:         3,
					OffsetY:         3,
					LockAspectRatio: true,
					Positioning:     "oneCell",
				},
			})
			if err == nil {
				widths[0] = max(widths[0], imageWidth)
				if err := f.SetRowHeight(sheetName, row, float64(thumb.Height)*0.75+6); err != nil {
					return err
				}
			} else {
				slog.Warn("failed to embed image", "ref", rec.ImageRef, "error", err)
				thumb = nil
			}
		}
		if thumb == nil {
			name := media.Name(rec.ImageRef)
			if err := f.SetCellStr(sheetName, photo, name); err != nil {
				return err
			}
			widths[0] = max(widths[0], utf8.RuneCountInString(name))
		}
	}

	values := []any{rec.Link, rec.Color, rec.Size, rec.Quantity, rec.Comment}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+2, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return err
		}
		widths[i+1] = max(widths[i+1], utf8.RuneCountInString(fmt.Sprint(v)))
	}

	last, _ := excelize.CoordinatesToCellName(len(model.Fields), row)
	return f.SetCellStyle(sheetName, photo, last, styles.cell)
}

// thumbnail returns nil when ref is not an embeddable image. The header check
// is cheap; the pixel data is decoded once, in MakeThumbnail.
func (g *Generator) thumbnail(ref string) *imaging.Thumbnail {
	if !g.media.IsDisplayableImage(ref) {
		return nil
	}
	r, err := g.media.Open(ref)
	if err != nil {
		slog.Warn("failed to open image", "ref", ref, "error", err)
		return nil
	}
	defer r.Close()

	thumb, err := imaging.MakeThumbnail(r, g.layout.ThumbnailMax)
	if err != nil {
		slog.Warn("failed to make thumbnail", "ref", ref, "error", err)
		return nil
	}
	return thumb
}

// Sanitize reduces a user-chosen document name to letters, digits, hyphens
// and underscores, cut on a rune boundary to at most maxNameRunes runes and
// maxNameBytes bytes. An empty result falls back to a name derived from now.
func Sanitize(name string, now time.Time) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	n := 0
	for _, r := range name {
		if n == maxNameRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			if b.Len()+utf8.RuneLen(r) > maxNameBytes {
				break
			}
			b.WriteRune(r)
			n++
		}
	}
	if b.Len() == 0 {
		return "cargo_" + strconv.FormatInt(now.Unix(), 10)
	}
	return b.String()
}

// FileName returns the archive file name for a user-chosen document name.
func FileName(name string, now time.Time) string {
	return Sanitize(name, now) + Extension
}
