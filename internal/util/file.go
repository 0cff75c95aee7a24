package util

import (
	"bytes"
	"crypto/rand"
	"io"
	"math/big"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const randomCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

// DetectMimeType 优先使用客户端声明的类型，缺失或为 octet-stream 时嗅探内容
// 返回的 reader 包含已读取的头部，调用方应继续使用它
func DetectMimeType(declared string, reader io.Reader) (string, io.Reader, error) {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(declared, ";"); idx >= 0 {
		declared = strings.TrimSpace(declared[:idx])
	}
	if declared != "" && declared != MimeOctetStream {
		return declared, reader, nil
	}

	header := make([]byte, 3072)
	n, err := io.ReadFull(reader, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", reader, err
	}
	header = header[:n]

	detected := mimetype.Detect(header).String()
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	return detected, io.MultiReader(bytes.NewReader(header), reader), nil
}

// IsImage 检测是否为图片
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, MimeImage)
}

// IsVideo 检测是否为视频
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}

// GenerateRandomString 生成指定长度的小写字母数字随机串
func GenerateRandomString(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(randomCharset)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = randomCharset[i%len(randomCharset)]
			continue
		}
		b[i] = randomCharset[idx.Int64()]
	}
	return string(b)
}

// GenerateFilename 时间戳 + 随机后缀 + 原扩展名
func GenerateFilename(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	ext = unsafeFilenameChars.ReplaceAllString(ext, "")
	return time.Now().Format("20060102150405") + "_" + GenerateRandomString(6) + ext
}
