package logging

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const filePrefix = "freshshell_"

// rotate removes the oldest "freshshell_*.log" files in dir so that at most
// maxFiles remain.
func rotate(dir string, maxFiles int) error {
	if maxFiles <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type logFile struct {
		path string
		mod  int64
	}
	var files []logFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		var mod int64
		if info, err := entry.Info(); err == nil {
			mod = info.ModTime().UnixNano()
		}
		files = append(files, logFile{path: filepath.Join(dir, name), mod: mod})
	}
	if len(files) <= maxFiles {
		return nil
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mod == files[j].mod {
			return files[i].path < files[j].path
		}
		return files[i].mod < files[j].mod
	})
	for _, f := range files[:len(files)-maxFiles] {
		os.Remove(f.path)
	}
	return nil
}
