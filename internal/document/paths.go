package document

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// MetadataRoot is the archive subtree holding metadata sidecar files.
const MetadataRoot = "metadata"

// CanonicalPath builds the archive-relative location for a document file:
// {type}/{year}/{month}/{docID}{ext}. The same inputs always produce the
// same path, so a re-run of the store stage lands on the file it already
// wrote. Documents without a usable creation date file under 0000/00.
func CanonicalPath(docType Type, createdAt time.Time, docID, fileName string) string {
	if !docType.Valid() {
		docType = TypeUnknown
	}
	year, month := "0000", "00"
	if !createdAt.IsZero() {
		utc := createdAt.UTC()
		year = utc.Format("2006")
		month = utc.Format("01")
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".pdf"
	}
	return path.Join(string(docType), year, month, docID+ext)
}

// MetadataPath mirrors a canonical path under the metadata root with a
// .json extension.
func MetadataPath(canonical string) string {
	ext := path.Ext(canonical)
	return path.Join(MetadataRoot, strings.TrimSuffix(canonical, ext)+".json")
}
