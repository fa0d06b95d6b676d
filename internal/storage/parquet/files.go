package parquet

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xtxerr/dossier/internal/date"
)

const ext = ".parquet"

// FileName returns the export file name for day d.
func FileName(d date.Date) string {
	return d.String() + ext
}

// File is one dated export file.
type File struct {
	Name string
	Path string
	Date date.Date
	Size int64
}

// ListFiles lists the dated export files in dir, oldest first. Files whose
// name is not a date are skipped; a missing dir yields no files.
func ListFiles(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []File
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext {
			continue
		}
		d, err := date.Parse(strings.TrimSuffix(name, ext))
		if err != nil || FileName(d) != name {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, File{
			Name: name,
			Path: filepath.Join(dir, name),
			Date: d,
			Size: info.Size(),
		})
	}
	// ReadDir sorts by name, which for canonical dates is chronological.
	return files, nil
}

// LatestFile returns the newest export file in dir. ok is false when there
// is none.
func LatestFile(dir string) (f File, ok bool, err error) {
	files, err := ListFiles(dir)
	if err != nil || len(files) == 0 {
		return File{}, false, err
	}
	return files[len(files)-1], true, nil
}
