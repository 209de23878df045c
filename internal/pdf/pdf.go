// Package pdf renders a markdown-ish travel plan into a PDF document.
//
// Only the subset of markdown the agent is told to produce is understood:
// "###" and "####" headings, "- " bullets, whole-line **bold** and plain
// paragraphs. The core PDF fonts only cover Latin-1, so anything outside it
// is dropped before rendering.
package pdf

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/model"
)

// Title heads every exported plan.
const Title = "AI-Generated Travel Plan"

// Disclaimer closes every exported plan.
const Disclaimer = "*This travel plan was generated using AI. Please verify key details before finalizing bookings.*"

// Kind is the visual role of a line.
type Kind int

const (
	Paragraph Kind = iota
	Heading3
	Heading4
	Bullet
	Bold
	Spacer
)

func (k Kind) String() string {
	switch k {
	case Heading3:
		return "h3"
	case Heading4:
		return "h4"
	case Bullet:
		return "bullet"
	case Bold:
		return "bold"
	case Spacer:
		return "spacer"
	}
	return "paragraph"
}

// Block is one laid-out line.
type Block struct {
	Kind Kind
	Text string
}

// style holds the font for a block kind.
type style struct {
	font string // "", "B" or "I"
	size float64
}

var styles = map[Kind]style{
	Paragraph: {"", 12},
	Heading3:  {"B", 13},
	Heading4:  {"B", 12},
	Bullet:    {"", 12},
	Bold:      {"B", 12},
}

const (
	lineHeight  = 8.0
	headerLine  = 10.0
	spacerGap   = 3.0
	sectionGap  = 10.0
	breakMargin = 15.0
	fontFamily  = "Helvetica"
)

// Layout splits text into blocks.
func Layout(text string) []Block {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	blocks := make([]Block, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(latin1(line))

		switch {
		case line == "":
			blocks = append(blocks, Block{Kind: Spacer})
		// "####" must be checked before "###"
		case strings.HasPrefix(line, "####"):
			blocks = append(blocks, Block{Kind: Heading4, Text: strings.TrimSpace(strings.TrimLeft(line, "#"))})
		case strings.HasPrefix(line, "###"):
			blocks = append(blocks, Block{Kind: Heading3, Text: strings.TrimSpace(strings.TrimLeft(line, "#"))})
		case strings.HasPrefix(line, "-"):
			blocks = append(blocks, Block{Kind: Bullet, Text: "- " + strings.TrimSpace(line[1:])})
		case len(line) >= 4 && strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**"):
			blocks = append(blocks, Block{Kind: Bold, Text: strings.TrimSpace(strings.ReplaceAll(line, "**", ""))})
		default:
			blocks = append(blocks, Block{Kind: Paragraph, Text: line})
		}
	}
	return blocks
}

// latin1 drops runes the core fonts cannot draw.
func latin1(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFF {
			return -1
		}
		return r
	}, s)
}

// Render writes text as a PDF to w.
func Render(w io.Writer, text string, now time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.System(errors.CodeExportFailed, fmt.Sprintf("pdf rendering crashed: %v", p))
		}
	}()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(Title, true)
	doc.SetCreator("tripwise", true)
	doc.SetCreationDate(now)
	doc.SetAutoPageBreak(true, breakMargin)
	doc.AliasNbPages("{nb}")
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFooterFunc(func() {
		doc.SetY(-breakMargin)
		doc.SetFont(fontFamily, "I", 8)
		doc.SetTextColor(128, 128, 128)
		doc.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", doc.PageNo()), "", 0, "C", false, 0, "")
	})
	doc.AddPage()
	writeHeader(doc, now)

	for _, b := range Layout(text) {
		if b.Kind == Spacer {
			doc.Ln(spacerGap)
			continue
		}
		st := styles[b.Kind]
		doc.SetFont(fontFamily, st.font, st.size)
		doc.SetTextColor(0, 0, 0)
		doc.MultiCell(0, lineHeight, tr(b.Text), "", "L", false)
	}

	doc.Ln(sectionGap)
	doc.SetFont(fontFamily, "I", 10)
	doc.SetTextColor(100, 100, 100)
	// justified, like the body of a plain multi-cell
	doc.MultiCell(0, lineHeight, Disclaimer, "", "J", false)

	if err := doc.Output(w); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "cannot render pdf", errors.CategorySystem)
	}
	return nil
}

// writeHeader draws the title and the generation date, leaving the cursor
// one section gap below them.
func writeHeader(doc *fpdf.Fpdf, now time.Time) {
	doc.SetFont(fontFamily, "B", 16)
	doc.CellFormat(0, headerLine, Title, "", 1, "C", false, 0, "")
	doc.SetFont(fontFamily, "", 10)
	doc.CellFormat(0, headerLine, "Generated on: "+now.Format("2006-01-02")+" at "+now.Format("15:04"), "", 1, "C", false, 0, "")
	doc.Ln(sectionGap)
}

// LastAnswer returns the most recent assistant text in a session log.
func LastAnswer(msgs []model.Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role == model.RoleAssistant && !m.HasToolCalls() && strings.TrimSpace(m.Content) != "" {
			return m.Content, true
		}
	}
	return "", false
}

// Filename is the attachment name for a plan exported at now.
func Filename(now time.Time) string {
	return "travel_plan_" + now.Format("2006-01-02") + ".pdf"
}
