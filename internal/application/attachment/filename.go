package attachment

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
)

// 存储路径中的分类目录
const (
	CategoryImages     = "images"
	CategoryThumbnails = "thumbnails"
	CategoryDocuments  = "documents"
)

const maxBaseNameRunes = 100

// SanitizeFileName 清洗用户文件名并加上毫秒时间戳前缀，避免同名覆盖
func SanitizeFileName(name string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}

	var sb strings.Builder
	lastUnderscore := false
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-':
			sb.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				sb.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	safe := strings.Trim(sb.String(), "._")
	if safe == "" {
		safe = "file"
	}
	if runes := []rune(safe); len(runes) > maxBaseNameRunes {
		safe = string(runes[len(runes)-maxBaseNameRunes:])
	}
	return fmt.Sprintf("%d_%s", now.UnixMilli(), safe)
}

// ErrUnsafePathSegment 路径片段为空、是相对目录或包含分隔符
var ErrUnsafePathSegment = errors.New("unsafe storage path segment")

// SafePathSegment 片段只能作为单级目录名出现
func SafePathSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

// BuildStoragePath {userId}/{conversationId}/{category}/{safeFilename}，任一片段不安全时返回错误
func BuildStoragePath(userID, conversationID, category, safeName string) (string, error) {
	segments := []string{userID, conversationID, category, safeName}
	for _, seg := range segments {
		if !SafePathSegment(seg) {
			return "", fmt.Errorf("%w: %q", ErrUnsafePathSegment, seg)
		}
	}
	return strings.Join(segments, "/"), nil
}

// replaceExt 替换扩展名（图片统一转为 jpg）
func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ext
}
