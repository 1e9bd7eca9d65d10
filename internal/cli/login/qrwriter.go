package login

import (
	"fmt"
	"io"
	"strings"

	qrcode "github.com/yeqown/go-qrcode/v2"
)

const quietZone = 2

// compactQRWriter renders a QR matrix with half-block characters so two
// module rows fit in one terminal line. Light modules are drawn as blocks,
// which reads correctly on dark terminal backgrounds.
type compactQRWriter struct {
	out    io.Writer
	indent string
}

func newCompactQRWriter(out io.Writer) *compactQRWriter {
	return &compactQRWriter{out: out, indent: "  "}
}

func (w *compactQRWriter) Write(mat qrcode.Matrix) error {
	_, err := io.WriteString(w.out, renderCompact(toGrid(mat), w.indent))
	return err
}

func (w *compactQRWriter) Close() error {
	return nil
}

// toGrid copies the matrix into grid[row][col], true meaning a dark module
func toGrid(mat qrcode.Matrix) [][]bool {
	size := max(mat.Width(), mat.Height())
	grid := make([][]bool, size)
	for i := range grid {
		grid[i] = make([]bool, size)
	}
	mat.Iterate(qrcode.IterDirection_ROW, func(x, y int, v qrcode.QRValue) {
		if y < size && x < size {
			grid[y][x] = v.IsSet()
		}
	})
	return grid
}

func renderCompact(grid [][]bool, indent string) string {
	n := len(grid)
	dark := func(row, col int) bool {
		row -= quietZone
		col -= quietZone
		if row < 0 || col < 0 || row >= n || col >= n {
			return false
		}
		return grid[row][col]
	}

	total := n + 2*quietZone
	var b strings.Builder
	for row := 0; row < total; row += 2 {
		b.WriteString(indent)
		for col := 0; col < total; col++ {
			top := !dark(row, col)
			bottom := row+1 < total && !dark(row+1, col)
			switch {
			case top && bottom:
				b.WriteString("█")
			case top:
				b.WriteString("▀")
			case bottom:
				b.WriteString("▄")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// printQRCode writes url as a terminal QR code followed by the raw link
func printQRCode(out io.Writer, url string) error {
	qr, err := qrcode.NewWith(url, qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionLow))
	if err != nil {
		return fmt.Errorf("failed to build QR code: %w", err)
	}

	w := newCompactQRWriter(out)
	if err := qr.Save(w); err != nil {
		return fmt.Errorf("failed to render QR code: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, helpStyle.UnsetMarginTop().Render("  Or open in a browser: "+url))
	fmt.Fprintln(out)
	return nil
}
