package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttachmentValidate(t *testing.T) {
	text := "body"
	thumb := "u/c/thumbnails/x.jpg"

	img := &Attachment{Kind: AttachmentKindImage, StoragePath: "u/c/images/x.jpg", ThumbnailPath: &thumb}
	assert.NoError(t, img.Validate())

	img.ExtractedText = &text
	assert.Error(t, img.Validate())

	pdf := &Attachment{Kind: AttachmentKindPDF, StoragePath: "u/c/documents/x.pdf", ExtractedText: &text}
	assert.NoError(t, pdf.Validate())

	pdf.ThumbnailPath = &thumb
	assert.Error(t, pdf.Validate())

	assert.Error(t, (&Attachment{Kind: "video", StoragePath: "p"}).Validate())
	assert.Error(t, (&Attachment{Kind: AttachmentKindText}).Validate())
}

func TestAttachmentDisplayNameAndText(t *testing.T) {
	a := &Attachment{FileName: "1700000000000_page.md"}
	assert.Equal(t, "1700000000000_page.md", a.DisplayName())
	assert.False(t, a.HasText())

	a.Metadata.Title = "Go Memory Model"
	blank := "  \n"
	a.ExtractedText = &blank
	assert.Equal(t, "Go Memory Model", a.DisplayName())
	assert.False(t, a.HasText())
}

func TestAttachmentKindClassification(t *testing.T) {
	assert.False(t, AttachmentKindImage.IsDocument())
	assert.True(t, AttachmentKindPDF.IsDocument())
	assert.True(t, AttachmentKindText.SupportsLazyExtraction())
	assert.True(t, AttachmentKindWebSearch.IsDocument())
}
