package extract

import (
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// exifTextTags are the EXIF tags whose values are free text that may carry
// URLs, host names, e-mail addresses or anything a signature rule looks for.
var exifTextTags = map[string]bool{
	"ImageDescription":   true,
	"Make":               true,
	"Model":              true,
	"Software":           true,
	"ProcessingSoftware": true,
	"Artist":             true,
	"Author":             true,
	"XPAuthor":           true,
	"XPComment":          true,
	"XPSubject":          true,
	"XPTitle":            true,
	"XPKeywords":         true,
	"Copyright":          true,
	"HostComputer":       true,
	"UserComment":        true,
	"DocumentName":       true,
	"CameraOwnerName":    true,
	"BodySerialNumber":   true,
	"LensSerialNumber":   true,
	"SerialNumber":       true,
}

// ExifText returns the free-text EXIF values of an image as
// "TagName: value" lines. An image without EXIF data, or data that cannot be
// parsed, yields an empty string.
func ExifText(imageData []byte) string {
	rawExif, err := exif.SearchAndExtractExif(imageData)
	if err != nil || rawExif == nil {
		return ""
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return ""
	}

	var b strings.Builder
	for _, entry := range entries {
		if !exifTextTags[entry.TagName] {
			continue
		}
		value := strings.TrimSpace(strings.Trim(entry.Formatted, "[]\x00"))
		if value == "" {
			continue
		}
		b.WriteString(entry.TagName)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return b.String()
}
