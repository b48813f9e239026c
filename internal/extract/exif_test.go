package extract

import (
	"encoding/binary"
	"strings"
	"testing"
)

// exifJPEG returns a minimal JPEG whose APP1 segment holds a little-endian
// TIFF structure with one IFD0 entry: ImageDescription = description.
func exifJPEG(description string) []byte {
	value := append([]byte(description), 0)

	tiff := []byte{'I', 'I', 0x2a, 0x00, 0x08, 0x00, 0x00, 0x00}
	tiff = binary.LittleEndian.AppendUint16(tiff, 1)      // entry count
	tiff = binary.LittleEndian.AppendUint16(tiff, 0x010e) // ImageDescription
	tiff = binary.LittleEndian.AppendUint16(tiff, 2)      // ASCII
	tiff = binary.LittleEndian.AppendUint32(tiff, uint32(len(value)))
	tiff = binary.LittleEndian.AppendUint32(tiff, 26) // value offset: header + count + entry + next IFD
	tiff = binary.LittleEndian.AppendUint32(tiff, 0)  // no next IFD
	tiff = append(tiff, value...)

	app1 := append([]byte("Exif\x00\x00"), tiff...)
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe1}
	jpeg = binary.BigEndian.AppendUint16(jpeg, uint16(len(app1)+2))
	jpeg = append(jpeg, app1...)
	return append(jpeg, 0xff, 0xd9)
}

func TestExifText(t *testing.T) {
	t.Parallel()

	t.Run("image description", func(t *testing.T) {
		t.Parallel()

		got := ExifText(exifJPEG("Shot for https://media.example.com/gallery/1"))
		want := "ImageDescription: Shot for https://media.example.com/gallery/1\n"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("description feeds the url extractor", func(t *testing.T) {
		t.Parallel()

		text := ExifText(exifJPEG("see https://media.example.com/gallery/1"))
		var found []string
		for c := range URLs(text) {
			found = append(found, c.Value)
		}
		if !strings.Contains(strings.Join(found, " "), "https://media.example.com/gallery/1") {
			t.Errorf("expected the description URL among %v", found)
		}
	})

	t.Run("without exif", func(t *testing.T) {
		t.Parallel()

		if got := ExifText([]byte("<html>not an image</html>")); got != "" {
			t.Errorf("expected empty text, got %q", got)
		}
		if got := ExifText(nil); got != "" {
			t.Errorf("expected empty text for nil data, got %q", got)
		}
		if got := ExifText([]byte{0xff, 0xd8, 0xff, 0xd9}); got != "" {
			t.Errorf("expected empty text for a bare JPEG, got %q", got)
		}
	})
}
