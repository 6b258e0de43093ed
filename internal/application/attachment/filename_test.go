package attachment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "1700000000123_report.pdf"},
		{"spaces and unicode", "季度 报告 (final).pdf", "1700000000123_final_.pdf"},
		{"path traversal", "../../etc/passwd", "1700000000123_passwd"},
		{"windows path", `C:\Users\me\cat.png`, "1700000000123_cat.png"},
		{"empty", "   ", "1700000000123_file"},
		{"only symbols", "@@@", "1700000000123_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.in, now))
		})
	}
}

func TestBuildStoragePath(t *testing.T) {
	p, err := BuildStoragePath("u1", "c1", CategoryImages, "1_a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "u1/c1/images/1_a.jpg", p)
	assert.Equal(t, "a.jpg", replaceExt("a.png", ".jpg"))
}

func TestBuildStoragePathRejectsTraversal(t *testing.T) {
	tests := []struct {
		name           string
		user, conv, fn string
	}{
		{"parent user", "../../escaped", "c1", "1_a.txt"},
		{"dot dot user", "..", "c1", "1_a.txt"},
		{"slash in conversation", "u1", "c1/../../x", "1_a.txt"},
		{"backslash", `u1\..\x`, "c1", "1_a.txt"},
		{"empty user", "", "c1", "1_a.txt"},
		{"dot file", "u1", "c1", "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := BuildStoragePath(tt.user, tt.conv, CategoryDocuments, tt.fn)
			require.ErrorIs(t, err, ErrUnsafePathSegment)
			assert.Empty(t, p)
		})
	}
}
