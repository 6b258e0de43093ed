package attachment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText 提取纯文本与页数。解析库遇到损坏文件可能 panic，这里转换为错误。
func ExtractPDFText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	pages = reader.NumPage()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", pages, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", pages, fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), pages, nil
}
