package storage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

type pdfPage struct {
	name   string
	data   []byte
	format string
	width  int
	height int
}

// PdfWriter collects pages and renders them into a PDF on Close, one image per
// page at its pixel size, ordered by item name.
type PdfWriter struct {
	path string

	mu     sync.Mutex
	pages  []pdfPage
	opened bool
	closed bool
}

// NewPdfWriter creates a writer for the document at path
func NewPdfWriter(path string) *PdfWriter {
	return &PdfWriter{path: path}
}

func (w *PdfWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return writeErr(w.path, ErrClosed)
	}
	if w.opened {
		return nil
	}
	if err := ensureParent(w.path); err != nil {
		return writeErr(w.path, err)
	}
	w.opened = true
	return nil
}

func (w *PdfWriter) Write(r io.Reader, name string) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, writeErr(name, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, writeErr(name, fmt.Errorf("failed to read image dimensions: %w", err))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.opened {
		return 0, writeErr(name, ErrNotOpen)
	}
	if w.closed {
		return 0, writeErr(name, ErrClosed)
	}

	w.pages = append(w.pages, pdfPage{
		name:   name,
		data:   data,
		format: format,
		width:  cfg.Width,
		height: cfg.Height,
	})
	return int64(len(data)), nil
}

func (w *PdfWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	pages := w.pages
	w.pages = nil

	if !w.opened || len(pages) == 0 {
		return nil
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].name < pages[j].name
	})

	doc := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt"})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCreator("webtoons", true)

	for i, page := range pages {
		if err := addImagePage(doc, fmt.Sprintf("page%d", i), page); err != nil {
			return writeErr(page.name, err)
		}
	}

	f, err := os.Create(w.path)
	if err != nil {
		return writeErr(w.path, err)
	}
	err = doc.Output(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return writeErr(w.path, err)
}

func addImagePage(doc *fpdf.Fpdf, id string, page pdfPage) error {
	data, imageType, err := pdfImage(page)
	if err != nil {
		return err
	}

	width, height := float64(page.width), float64(page.height)
	opts := fpdf.ImageOptions{ImageType: imageType}

	doc.AddPageFormat("P", fpdf.SizeType{Wd: width, Ht: height})
	doc.RegisterImageOptionsReader(id, opts, bytes.NewReader(data))
	doc.ImageOptions(id, 0, 0, width, height, false, opts, 0, "")

	return doc.Error()
}

// pdfImage embeds JPEG as is and normalizes everything else to an 8-bit PNG
func pdfImage(page pdfPage) ([]byte, string, error) {
	if page.format == "jpeg" {
		return page.data, "JPG", nil
	}

	img, _, err := image.Decode(bytes.NewReader(page.data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, nrgba); err != nil {
		return nil, "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), "PNG", nil
}
