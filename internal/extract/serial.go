package extract

import (
	"regexp"
	"sort"
)

// SerializedKind names a serialization or compression format.
type SerializedKind string

// Serialized object kinds.
const (
	SerializedJava       SerializedKind = "Java"
	SerializedDotNet     SerializedKind = "DOTNET"
	SerializedPHPArray   SerializedKind = "PHP_Array"
	SerializedPHPString  SerializedKind = "PHP_String"
	SerializedPHPObject  SerializedKind = "PHP_Object"
	SerializedCompressed SerializedKind = "Possible_Compressed"
)

// Serialized is one detected serialized object.
type Serialized struct {
	// Kind is the detected format.
	Kind SerializedKind

	// Region is the matched base64 token.
	Region string

	// Offset is the byte offset of the token in the scanned text.
	Offset int
}

// serialBoundary and serialEnd require the token to be delimited on both
// sides by the text edges or by characters that cannot continue a base64
// token or a word.
const (
	serialBoundary = `(?:^|[^A-Za-z0-9/+_])`
	serialEnd      = `(?:$|[^A-Za-z0-9/+=_])`
)

// serialSignatures maps each kind to the base64 form of its magic header.
//
//   - Java: 0xACED0005 stream magic -> "rO0"
//   - .NET BinaryFormatter: SerializedStreamHeader record -> "AAEAAAD/////"
//   - PHP: a:<n>, s:<n>, O:<n> -> "YTo", "czo", "Tzo" followed by the length digit
//   - gzip: 1F8B0800 with zero mtime -> "H4sIAAAAAAAA"
var serialSignatures = []struct {
	kind SerializedKind
	re   *regexp.Regexp
}{
	{SerializedJava, regexp.MustCompile(serialBoundary + `(rO0[a-zA-Z0-9+/]+={0,2})` + serialEnd)},
	{SerializedDotNet, regexp.MustCompile(serialBoundary + `(AAEAAAD//[a-zA-Z0-9/+]+={0,2})` + serialEnd)},
	{SerializedPHPArray, regexp.MustCompile(serialBoundary + `(YTo[xyz0-9][a-zA-Z0-9+/]+={0,2})` + serialEnd)},
	{SerializedPHPString, regexp.MustCompile(serialBoundary + `(czo[xyz0-9][a-zA-Z0-9+/]+={0,2})` + serialEnd)},
	{SerializedPHPObject, regexp.MustCompile(serialBoundary + `(Tzo[xyz0-9][a-zA-Z0-9+/]+={0,2})` + serialEnd)},
	{SerializedCompressed, regexp.MustCompile(serialBoundary + `(H4sIAAAAAAAA[a-zA-Z0-9+/]+={0,2})` + serialEnd)},
}

// DetectSerialized reports the first occurrence of each serialized object kind
// in text, ordered by offset.
//
// Design decision: Go regular expressions have no look-around, so both
// boundaries are consumed non-capturing groups and the reported region is
// the capture group. Without them, any long base64 blob would eventually
// contain "YTo2" or "rO0" by chance.
func DetectSerialized(text string) []Serialized {
	found := make([]Serialized, 0)
	for _, sig := range serialSignatures {
		m := sig.re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		found = append(found, Serialized{
			Kind:   sig.kind,
			Region: text[m[2]:m[3]],
			Offset: m[2],
		})
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Offset < found[j].Offset
	})
	return found
}
