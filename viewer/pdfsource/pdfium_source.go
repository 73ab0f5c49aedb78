package pdfsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	pdfiumerrors "github.com/klippa-app/go-pdfium/errors"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

var (
	pdfiumOnce sync.Once
	pdfiumPool pdfium.Pool
	pdfiumErr  error
)

// initPDFium sets up the shared WebAssembly worker pool on first use. Workers
// are expensive, so one pool serves every open document in the process.
func initPDFium() (pdfium.Pool, error) {
	pdfiumOnce.Do(func() {
		pdfiumPool, pdfiumErr = webassembly.Init(webassembly.Config{
			MinIdle:  1,
			MaxIdle:  1,
			MaxTotal: 2,
		})
		if pdfiumErr != nil {
			pdfiumErr = fmt.Errorf("failed to initialize PDFium WebAssembly: %w", pdfiumErr)
		}
	})
	return pdfiumPool, pdfiumErr
}

type pdfiumDocument struct {
	mu       sync.Mutex
	instance pdfium.Pdfium
	doc      references.FPDF_DOCUMENT
	numPages int
	closed   bool
}

// OpenPDFium opens a document with the go-pdfium WebAssembly backend. A wrong
// or missing password for an encrypted file returns ErrPasswordRequired.
func OpenPDFium(path string, opts OpenOptions) (Document, error) {
	pool, err := initPDFium()
	if err != nil {
		return nil, err
	}
	instance, err := pool.GetInstance(30 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		instance.Close()
		return nil, fmt.Errorf("unable to open PDF file: %w", err)
	}
	total := int64(-1)
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	data, err := io.ReadAll(newProgressReader(f, total, opts.Progress))
	f.Close()
	if err != nil {
		instance.Close()
		return nil, fmt.Errorf("unable to read PDF file: %w", err)
	}

	openReq := &requests.OpenDocument{File: &data}
	if opts.Password != "" {
		openReq.Password = &opts.Password
	}
	doc, err := instance.OpenDocument(openReq)
	if err != nil {
		instance.Close()
		if errors.Is(err, pdfiumerrors.ErrPassword) {
			return nil, ErrPasswordRequired
		}
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	pageCount, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		instance.Close()
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	return &pdfiumDocument{
		instance: instance,
		doc:      doc.Document,
		numPages: pageCount.PageCount,
	}, nil
}

func (d *pdfiumDocument) NumPages() int {
	return d.numPages
}

func (d *pdfiumDocument) Page(number int) (Page, error) {
	if number < 1 || number > d.numPages {
		return nil, fmt.Errorf("page %d out of range 1..%d", number, d.numPages)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("document is closed")
	}

	size, err := d.instance.GetPageSize(&requests.GetPageSize{
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{Document: d.doc, Index: number - 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to measure page %d: %w", number, err)
	}

	// PDF points are 1/72 inch, which maps 1:1 onto CSS pixels at scale 1.0
	return &pdfiumPage{
		doc:    d,
		number: number,
		width:  size.Width,
		height: size.Height,
	}, nil
}

func (d *pdfiumDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.doc})
	return d.instance.Close()
}

type pdfiumPage struct {
	doc    *pdfiumDocument
	number int
	width  float64
	height float64
}

func (p *pdfiumPage) Number() int {
	return p.number
}

func (p *pdfiumPage) Size() (float64, float64) {
	return p.width, p.height
}

func (p *pdfiumPage) Render(ctx context.Context, viewport Viewport) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.doc.closed {
		return nil, fmt.Errorf("document is closed")
	}

	render, err := p.doc.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: int(72*viewport.Scale + 0.5),
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{Document: p.doc.doc, Index: p.number - 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", p.number, err)
	}
	defer render.Cleanup()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Copy out of the worker-owned buffer before Cleanup invalidates it
	src := render.Result.Image
	copied := image.NewRGBA(src.Bounds())
	copy(copied.Pix, src.Pix)
	return copied, nil
}
