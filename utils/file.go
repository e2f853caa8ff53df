package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	FILE_EXT_TIF = ".tif"
	FILE_EXT_ASC = ".asc"

	tmpSuffix = ".tmp"
)

var (
	ErrEmptyPath = errors.New("empty path")
)

// 在parentPath下创建唯一的子目录
func GetUniqSubDir(parentPath string) (path string, err error) {
	if parentPath == "" {
		parentPath = os.TempDir()
	}
	path = filepath.Join(parentPath, uuid.NewString())
	err = os.Mkdir(path, os.ModePerm)
	return
}

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// 输出文件路径：相对路径基于dataDir，无扩展名时补上defExt
func ResolveOutputPath(dataDir, name, defExt string) (path string, err error) {
	if name == "" {
		err = ErrEmptyPath
		return
	}
	path = name
	if filepath.Ext(path) == "" {
		path += defExt
	}
	if !filepath.IsAbs(path) && dataDir != "" {
		path = filepath.Join(dataDir, path)
	}
	path = filepath.Clean(path)
	return
}

// 确保文件所在目录存在
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), os.ModePerm)
}

// 与dst同目录的临时文件路径，保留dst扩展名以便驱动识别
func TempSibling(dst string) string {
	ext := filepath.Ext(dst)
	return strings.TrimSuffix(dst, ext) + "." + uuid.NewString() + tmpSuffix + ext
}

// 用tmp替换dst：仅在新文件就绪后删除旧文件
func ReplaceFile(tmp, dst string) (err error) {
	if err = os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return
	}
	err = os.Rename(tmp, dst)
	return
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
