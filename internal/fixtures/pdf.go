package fixtures

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"signflow/internal/geometry"
)

// WriteReferencePDF writes a minimal, valid PDF with the given number of
// blank pages of the given size. Each page carries a "Page N" label so a
// rendered document can be checked for pagination.
func WriteReferencePDF(w io.Writer, pages int, size geometry.PageSize) error {
	if pages < 1 {
		return fmt.Errorf("pages must be at least 1, got %d", pages)
	}

	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	// 1: catalog, 2: page tree, 3: font, then (page, content) pairs.
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i := 0; i < pages; i++ {
		pageObj := 4 + 2*i
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			size.Width, size.Height, pageObj+1))
		stream := fmt.Sprintf("BT /F1 18 Tf 72 %g Td (Page %d) Tj ET", size.Height-72, i+1)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	_, err := w.Write(buf.Bytes())
	return err
}

// EnsureReferencePDF makes sure a reference PDF exists at path, writing one
// when missing, and returns the path.
func EnsureReferencePDF(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create fixture directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create reference PDF: %w", err)
	}
	defer f.Close()
	if err := WriteReferencePDF(f, PageCount, geometry.A4); err != nil {
		return "", fmt.Errorf("failed to write reference PDF: %w", err)
	}
	return path, nil
}
