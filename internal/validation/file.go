package validation

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"formkit/internal/model"
)

// FilePolicy constrains the files a file field accepts
type FilePolicy struct {
	MaxFileMB  *float64
	MimeTypes  []string
	Extensions []string
}

// FileInfo is the metadata a client posts for an uploaded file
type FileInfo struct {
	Name string
	Type string
	Size int64
}

// PolicyFor builds the policy of a file field from its settings.
// Accept entries starting with a dot are extensions, everything else is a MIME pattern.
func PolicyFor(f model.Field) *FilePolicy {
	fp := &FilePolicy{MaxFileMB: f.Settings.MaxFileMB}
	for _, a := range f.Settings.Accept {
		a = strings.ToLower(strings.TrimSpace(a))
		if strings.HasPrefix(a, ".") {
			fp.Extensions = append(fp.Extensions, strings.TrimPrefix(a, "."))
		} else if a != "" {
			fp.MimeTypes = append(fp.MimeTypes, a)
		}
	}
	return fp
}

// ValidateValue checks a file field value: one file object or a list of them
func (fp *FilePolicy) ValidateValue(v any) error {
	files, err := parseFiles(v)
	if err != nil {
		return err
	}
	for _, fi := range files {
		if err := fp.ValidateFile(fi.Name, fi.Type, fi.Size); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFile validates a file against the policy
func (fp *FilePolicy) ValidateFile(fileName, contentType string, fileSizeBytes int64) error {
	if fp == nil {
		return nil
	}

	if fp.MaxFileMB != nil {
		maxBytes := int64(*fp.MaxFileMB * 1024 * 1024)
		if fileSizeBytes > maxBytes {
			return fmt.Errorf("File %s is larger than %.2f MB", fileName, *fp.MaxFileMB)
		}
	}

	// accept entries match like an HTML accept list: any extension or MIME pattern will do
	if len(fp.MimeTypes) == 0 && len(fp.Extensions) == 0 {
		return nil
	}
	if fp.matchesExtension(fileName) || (contentType != "" && fp.matchesMimeType(contentType)) {
		return nil
	}
	return fmt.Errorf("File %s is not an accepted file type", fileName)
}

func (fp *FilePolicy) matchesMimeType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	for _, allowed := range fp.MimeTypes {
		if strings.HasSuffix(allowed, "/*") {
			if strings.HasPrefix(mediaType, strings.TrimSuffix(allowed, "*")) {
				return true
			}
		} else if mediaType == allowed {
			return true
		}
	}
	return false
}

func (fp *FilePolicy) matchesExtension(fileName string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range fp.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func parseFiles(v any) ([]FileInfo, error) {
	if m, ok := v.(map[string]any); ok {
		fi, err := parseFile(m)
		if err != nil {
			return nil, err
		}
		return []FileInfo{fi}, nil
	}
	items, ok := model.ToSlice(v)
	if !ok {
		return nil, fmt.Errorf("Invalid file upload")
	}
	out := make([]FileInfo, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("Invalid file upload")
		}
		fi, err := parseFile(m)
		if err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, nil
}

func parseFile(m map[string]any) (FileInfo, error) {
	name, _ := m["name"].(string)
	if name == "" {
		return FileInfo{}, fmt.Errorf("Invalid file upload")
	}
	fi := FileInfo{Name: name}
	fi.Type, _ = m["type"].(string)
	if size, ok := model.ToFloat(m["size"]); ok {
		fi.Size = int64(size)
	}
	return fi, nil
}
