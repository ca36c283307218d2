package docutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

// ErrFileTooLarge 上传内容超过限制。
var ErrFileTooLarge = errors.New("upload exceeds size limit")

const maxNameLength = 128

// FileStore 将上传文件保存在本地目录中。
type FileStore struct {
	dir string
}

// NewFileStore 创建 FileStore，目录不存在时自动创建。
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir 返回存储目录。
func (s *FileStore) Dir() string {
	return s.dir
}

// Save 将 r 写入 <dir>/<owner>_<ulid>_<filename>，返回路径与字节数。
// 超过 maxSize 时删除已写入部分并返回 ErrFileTooLarge。
func (s *FileStore) Save(ownerID, filename string, r io.Reader, maxSize int64) (string, int64, error) {
	name := fmt.Sprintf("%s_%s_%s", sanitize(ownerID), ulid.Make().String(), sanitize(filepath.Base(filename)))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, maxSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	case closeErr != nil:
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("close upload file: %w", closeErr)
	case n > maxSize:
		_ = os.Remove(path)
		return "", 0, ErrFileTooLarge
	}

	return path, n, nil
}

// Remove 删除文件，文件不存在不视为错误。
func (s *FileStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exists 判断文件是否存在。
func (s *FileStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// sanitize 保留字母、数字以及 . - _，其余替换为下划线。
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
	if r := []rune(s); len(r) > maxNameLength {
		s = string(r[len(r)-maxNameLength:])
	}
	if s == "" || strings.Trim(s, ".") == "" {
		s = "file"
	}
	return s
}
