package fixtures

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signflow/internal/geometry"
)

func TestDefaultCoordinates(t *testing.T) {
	m, err := DefaultCoordinates()
	require.NoError(t, err)

	assert.Equal(t, geometry.A4, m.PageSize())
	assert.Len(t, m.All(), 29)
	assert.Equal(t, []string{"Signer 1", "Signer 2"}, m.Roles())
	for p := 1; p <= PageCount; p++ {
		assert.NotEmpty(t, m.Page(p), "page %d", p)
	}
	assert.Nil(t, m.Page(4))

	f, ok := m.Lookup("signer1-accept")
	require.True(t, ok)
	assert.Equal(t, 2, f.Page)
	assert.False(t, f.IsDocumentScope())
}

func TestCoordinateMap_WithoutRoles(t *testing.T) {
	m, err := DefaultCoordinates()
	require.NoError(t, err)

	docOnly := m.WithoutRoles()
	assert.Empty(t, docOnly.Roles())
	for _, f := range docOnly.All() {
		assert.True(t, f.IsDocumentScope(), f.Name)
	}
	assert.NoError(t, docOnly.Validate())
}

func TestCoordinateMap_Validate(t *testing.T) {
	base := func() *CoordinateMap {
		return &CoordinateMap{
			PageWidth:  595,
			PageHeight: 842,
			Page1:      []FieldCoord{{Name: "a", Type: "text", Page: 1, X: 10, Y: 10, Width: 50, Height: 20}},
		}
	}

	tests := []struct {
		name   string
		mutate func(m *CoordinateMap)
		errMsg string
	}{
		{"valid", func(m *CoordinateMap) {}, ""},
		{"wrong page", func(m *CoordinateMap) { m.Page1[0].Page = 2 }, "declares page 2"},
		{"out of bounds", func(m *CoordinateMap) { m.Page1[0].X = 580 }, "exceeds page"},
		{"duplicate", func(m *CoordinateMap) {
			m.Page2 = []FieldCoord{{Name: "a", Type: "text", Page: 2, X: 1, Y: 1, Width: 1, Height: 1}}
		}, "duplicate"},
		{"no type", func(m *CoordinateMap) { m.Page1[0].Type = "" }, "no type"},
		{"bad page size", func(m *CoordinateMap) { m.PageWidth = 0 }, "invalid page size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			err := m.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadCoordinates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coords.json")
	require.NoError(t, os.WriteFile(path, defaultCoordinates, 0o644))

	m, err := LoadCoordinates(path)
	require.NoError(t, err)
	assert.Len(t, m.All(), 29)

	_, err = LoadCoordinates(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = LoadCoordinates(path)
	assert.Error(t, err)
}

func TestWriteReferencePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReferencePDF(&buf, 3, geometry.A4))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "%PDF-1.4"))
	assert.Contains(t, out, "/Count 3")
	assert.Contains(t, out, "(Page 3) Tj")
	assert.True(t, strings.HasSuffix(out, "%%EOF\n"))

	// startxref must point at the xref table.
	m := regexp.MustCompile(`startxref\n(\d+)\n`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	off, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out[off:], "xref\n"))

	// Every xref entry points at the start of its object.
	entries := regexp.MustCompile(`(\d{10}) 00000 n `).FindAllStringSubmatch(out, -1)
	require.Len(t, entries, 3+2*3)
	for i, e := range entries {
		pos, err := strconv.Atoi(e[1])
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out[pos:], strconv.Itoa(i+1)+" 0 obj"), "object %d", i+1)
	}

	assert.Error(t, WriteReferencePDF(&buf, 0, geometry.A4))
}

func TestEnsureReferencePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.pdf")
	got, err := EnsureReferencePDF(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(100))

	// Existing files are left alone.
	require.NoError(t, os.WriteFile(path, []byte("custom"), 0o644))
	_, err = EnsureReferencePDF(path)
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "custom", string(data))
}

func TestCoordinateMap_VisibleTo(t *testing.T) {
	m, err := DefaultCoordinates()
	require.NoError(t, err)

	visible := m.VisibleTo("Signer 2")
	names := make(map[string]bool, len(visible))
	for _, f := range visible {
		names[f.Name] = true
		assert.True(t, f.IsDocumentScope() || f.Scope == "Signer 2", "field %s leaks from %s", f.Name, f.Scope)
	}
	assert.True(t, names["company-name"])
	assert.True(t, names["signer2-address"])
	assert.False(t, names["signer1-signature"])

	assert.Len(t, m.VisibleTo("Nobody"), len(m.WithoutRoles().All()))
}
