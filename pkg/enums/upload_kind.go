package enums

import "strings"

// UploadKind selects the size limit and folder for an admin upload.
type UploadKind string

const (
	UploadKindImage UploadKind = "image"
	UploadKindAudio UploadKind = "audio"
	UploadKindZip   UploadKind = "zip"
	UploadKindRaw   UploadKind = "raw"
)

var uploadKinds = set[UploadKind]{UploadKindImage, UploadKindAudio, UploadKindZip, UploadKindRaw}

func (k UploadKind) IsValid() bool { return uploadKinds.has(k) }

// ParseUploadKind maps the form value to a kind; empty means raw.
func ParseUploadKind(value string) (UploadKind, error) {
	if strings.TrimSpace(value) == "" {
		return UploadKindRaw, nil
	}
	return uploadKinds.parse("upload type", strings.ToLower(value))
}
