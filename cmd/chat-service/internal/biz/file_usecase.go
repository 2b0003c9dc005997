package biz

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"chatbackend/cmd/chat-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// FileUsecase 文件上传分析用例
type FileUsecase struct {
	analyzer     *DocumentAnalyzer
	maxFileBytes int64
	allowedExts  map[string]bool
	log          *log.Helper
}

// NewFileUsecase 创建文件用例
func NewFileUsecase(analyzer *DocumentAnalyzer, maxFileBytes int64, logger log.Logger) *FileUsecase {
	return &FileUsecase{
		analyzer:     analyzer,
		maxFileBytes: maxFileBytes,
		allowedExts: map[string]bool{
			".txt":  true,
			".md":   true,
			".json": true,
		},
		log: log.NewHelper(log.With(logger, "module", "file-usecase")),
	}
}

// AnalyzeUpload 校验上传文件并返回分块分析报告
func (uc *FileUsecase) AnalyzeUpload(ctx context.Context, filename string, size int64, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !uc.allowedExts[ext] {
		return "", fmt.Errorf("%w: %s", domain.ErrFileTypeNotAllowed, ext)
	}

	if size > uc.maxFileBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", domain.ErrFileTooLarge, size, uc.maxFileBytes)
	}

	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: file is not valid UTF-8", domain.ErrFileTypeNotAllowed)
	}

	uc.log.WithContext(ctx).Infof("analyzing upload: name=%s size=%d", filename, size)
	return uc.analyzer.AnalyzeDocument(ctx, string(content))
}
