package locator

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/lexdex/internal/domain"
)

// Kind discriminates the citation locator variants.
type Kind string

// Locator kinds.
const (
	KindHTML    Kind = "html"
	KindDOCX    Kind = "docx"
	KindPDFText Kind = "pdf_text"
	KindPDFOCR  Kind = "pdf_ocr"
	KindWeb     Kind = "web"
)

// LowOCRConfidence is the OCR confidence below which a citation deserves a warning.
const LowOCRConfidence = 85.0

// HTML locates a passage in an HTML page.
type HTML struct {
	URL     string `json:"url"`
	Anchor  string `json:"anchor,omitempty"`
	DOMPath string `json:"dom_path,omitempty"`
}

// DOCX locates a paragraph in a Word document.
type DOCX struct {
	ParagraphIndex int      `json:"paragraph_index"`
	HeadingPath    []string `json:"heading_path,omitempty"`
}

// PDFText locates lines on a page of a text-layer PDF.
type PDFText struct {
	Page      int  `json:"page"`
	LineStart *int `json:"line_start,omitempty"`
	LineEnd   *int `json:"line_end,omitempty"`
}

// PDFOCR locates lines on an OCR'd PDF page.
type PDFOCR struct {
	Page          int     `json:"page"`
	ConfidenceOCR float64 `json:"confidence_ocr"`
	LineStart     *int    `json:"line_start,omitempty"`
}

// Web locates a crawled page.
type Web struct {
	URL        string `json:"url"`
	CrawlDepth *int   `json:"crawl_depth,omitempty"`
}

// Locator is a tagged union pointing back into the original source.
// Exactly one variant field is set, matching Kind.
type Locator struct {
	kind    Kind
	html    *HTML
	docx    *DOCX
	pdfText *PDFText
	pdfOCR  *PDFOCR
	web     *Web
}

// NewHTML creates an html locator.
func NewHTML(v HTML) (Locator, error) {
	if v.URL == "" {
		return Locator{}, fmt.Errorf("html locator requires url: %w", domain.ErrValidation)
	}
	return Locator{kind: KindHTML, html: &v}, nil
}

// NewDOCX creates a docx locator.
func NewDOCX(v DOCX) (Locator, error) {
	if v.ParagraphIndex < 0 {
		return Locator{}, fmt.Errorf("docx paragraph_index must be >= 0: %w", domain.ErrValidation)
	}
	if len(v.HeadingPath) == 0 {
		v.HeadingPath = nil
	}
	return Locator{kind: KindDOCX, docx: &v}, nil
}

// NewPDFText creates a pdf_text locator.
func NewPDFText(v PDFText) (Locator, error) {
	if v.Page < 1 {
		return Locator{}, fmt.Errorf("pdf_text page must be >= 1: %w", domain.ErrValidation)
	}
	if v.LineStart != nil && v.LineEnd != nil && *v.LineEnd < *v.LineStart {
		return Locator{}, fmt.Errorf("pdf_text line_end before line_start: %w", domain.ErrValidation)
	}
	return Locator{kind: KindPDFText, pdfText: &v}, nil
}

// NewPDFOCR creates a pdf_ocr locator.
func NewPDFOCR(v PDFOCR) (Locator, error) {
	if v.Page < 1 {
		return Locator{}, fmt.Errorf("pdf_ocr page must be >= 1: %w", domain.ErrValidation)
	}
	if v.ConfidenceOCR < 0 || v.ConfidenceOCR > 100 {
		return Locator{}, fmt.Errorf("pdf_ocr confidence_ocr must be within 0..100: %w", domain.ErrValidation)
	}
	return Locator{kind: KindPDFOCR, pdfOCR: &v}, nil
}

// NewWeb creates a web locator.
func NewWeb(v Web) (Locator, error) {
	if v.URL == "" {
		return Locator{}, fmt.Errorf("web locator requires url: %w", domain.ErrValidation)
	}
	return Locator{kind: KindWeb, web: &v}, nil
}

// Kind returns the variant tag. Empty for the zero Locator.
func (l Locator) Kind() Kind { return l.kind }

// IsZero reports whether no variant is set.
func (l Locator) IsZero() bool { return l.kind == "" }

// HTML returns the html variant.
func (l Locator) HTML() (HTML, bool) { return deref(l.html) }

// DOCX returns the docx variant.
func (l Locator) DOCX() (DOCX, bool) { return deref(l.docx) }

// PDFText returns the pdf_text variant.
func (l Locator) PDFText() (PDFText, bool) { return deref(l.pdfText) }

// PDFOCR returns the pdf_ocr variant.
func (l Locator) PDFOCR() (PDFOCR, bool) { return deref(l.pdfOCR) }

// Web returns the web variant.
func (l Locator) Web() (Web, bool) { return deref(l.web) }

// LowConfidence reports OCR locators under LowOCRConfidence.
func (l Locator) LowConfidence() bool {
	return l.pdfOCR != nil && l.pdfOCR.ConfidenceOCR < LowOCRConfidence
}

func deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

type tagged struct {
	Type Kind `json:"type"`
}

// MarshalJSON encodes the locator as a flat object with a "type" tag.
func (l Locator) MarshalJSON() ([]byte, error) {
	var variant any
	switch l.kind {
	case KindHTML:
		variant = l.html
	case KindDOCX:
		variant = l.docx
	case KindPDFText:
		variant = l.pdfText
	case KindPDFOCR:
		variant = l.pdfOCR
	case KindWeb:
		variant = l.web
	case "":
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown locator kind %q", l.kind)
	}

	body, err := json.Marshal(variant)
	if err != nil {
		return nil, fmt.Errorf("marshal %s locator: %w", l.kind, err)
	}
	tag, _ := json.Marshal(string(l.kind))
	// body is a non-empty object: splice the tag in front of its fields
	out := make([]byte, 0, len(body)+len(tag)+9)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	out = append(out, body[1:]...)
	return out, nil
}

// UnmarshalJSON decodes a tagged locator object.
func (l *Locator) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Locator{}
		return nil
	}
	var t tagged
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("decode locator tag: %w", err)
	}

	var (
		out Locator
		err error
	)
	switch t.Type {
	case KindHTML:
		var v HTML
		if err = json.Unmarshal(data, &v); err == nil {
			out, err = NewHTML(v)
		}
	case KindDOCX:
		var v DOCX
		if err = json.Unmarshal(data, &v); err == nil {
			out, err = NewDOCX(v)
		}
	case KindPDFText:
		var v PDFText
		if err = json.Unmarshal(data, &v); err == nil {
			out, err = NewPDFText(v)
		}
	case KindPDFOCR:
		var v PDFOCR
		if err = json.Unmarshal(data, &v); err == nil {
			out, err = NewPDFOCR(v)
		}
	case KindWeb:
		var v Web
		if err = json.Unmarshal(data, &v); err == nil {
			out, err = NewWeb(v)
		}
	default:
		return fmt.Errorf("unknown locator type %q: %w", t.Type, domain.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("decode %s locator: %w", t.Type, err)
	}
	*l = out
	return nil
}
