package extract

import (
	"testing"
)

func TestDetectSerialized(t *testing.T) {
	t.Parallel()

	body := `<html>
<h1>.NET</h1>
<p>AAEAAAD/////AQAAAAAAAAAMAgAAAFJTeXN0ZW0uQ29sbGVjdGlvbnMuR2VuZXJpYy5MaXN0YDFbW1N5c3RlbS5TdHJpbmddXSwgU3lzdGVtLCBWZXJzaW9uPTQuMC4wLjAsIEN1bHR1cmU9bmV1dHJhbCwgUHVibGljS2V5VG9rZW49YjAzZjVmN2YxMWQ1MGFlMwEAAAAIQ29tcGFyZXIQSXRlbUNvdW50AQMAAAAJAwAAAAlTeXN0ZW0uU3RyaW5nW10FAAAACQIAAAAJBAAAAAkFAAAACRcAAAAJCgAAAAkLAAAACQwAAAAJDQAAAAkOAAAACQ8AAAAJEAAAAAkRAAAACRIAAAAJEwAAAA==</p>
<h1>Java</h1>
<p>rO0ABXQADUhlbGxvLCB3b3JsZCE=</p>
<h1>PHP (string)</h1>
<p>czoyNDoiSGVsbG8sIHdvcmxkISBNb3JlIHRleHQuIjs=</p>
<h1>PHP (array)</h1>
<p>YTo0OntpOjA7aToxO2k6MTtzOjE0OiJzZWNvbmQgZWxlbWVudCI7aToyO2k6MztpOjM7czoxODoiTW9yZSB0ZXh0IGluIGFycmF5Ijt9</p>
<h1>PHP (object)</h1>
<p>TzoxMjoiU2FtcGxlT2JqZWN0IjoyOntzOjg6InByb3BlcnR5IjtzOjEzOiJJbml0aWFsIHZhbHVlIjtzOjE2OiJhZGRpdGlvbmFsU3RyaW5nIjtzOjIxOiJFeHRyYSB0ZXh0IGluIG9iamVjdC4iO30=</p>
<h1>Compression</h1>
<p>H4sIAAAAAAAA/yu2MjS2UvJIzcnJ11Eozy/KSVFUsgYAZN5upRUAAAA=</p>
</html>`

	found := DetectSerialized(body)

	want := []SerializedKind{
		SerializedDotNet,
		SerializedJava,
		SerializedPHPString,
		SerializedPHPArray,
		SerializedPHPObject,
		SerializedCompressed,
	}
	if len(found) != len(want) {
		t.Fatalf("expected %d findings, got %d: %v", len(want), len(found), found)
	}
	for i, kind := range want {
		if found[i].Kind != kind {
			t.Errorf("finding %d: expected %s, got %s", i, kind, found[i].Kind)
		}
	}

	if found[1].Region != "rO0ABXQADUhlbGxvLCB3b3JsZCE=" {
		t.Errorf("expected the java token as region, got %q", found[1].Region)
	}
	if body[found[1].Offset:found[1].Offset+3] != "rO0" {
		t.Errorf("expected offset to point at the token, got %d", found[1].Offset)
	}
}

func TestDetectSerializedRequiresBoundary(t *testing.T) {
	t.Parallel()

	body := "<html><p>llsdtVVFlJxhcGGYTo2PMGTRNFVKZxeKTVbhyosM3Sm/5apoY1/yUmN6HVcn+Xt798SPzgXQlZMttsqp1U1iJFmFO2aCGL/v3tmm/fs7itYsoNnJCelWvm9P4ic1nlKTBOpMjT5B5NmriZwTAzZ5ASjCKcmN8Vh=</p></html>"

	if found := DetectSerialized(body); len(found) != 0 {
		t.Errorf("expected no findings inside a base64 blob, got %v", found)
	}
}

func TestDetectSerializedStartOfText(t *testing.T) {
	t.Parallel()

	found := DetectSerialized("rO0ABXQADUhlbGxvLCB3b3JsZCE=")
	if len(found) != 1 || found[0].Kind != SerializedJava || found[0].Offset != 0 {
		t.Errorf("expected java at offset 0, got %v", found)
	}
}

func TestDetectSerializedRequiresTrailingBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "underscore continues the word", text: "<p>rO0ABXQ_abc</p>", want: 0},
		{name: "underscore before the token", text: "<p>abc_rO0ABXQADUhlbGxvLCB3b3JsZCE=</p>", want: 0},
		{name: "extra padding", text: "<p>rO0ABXQADUhlbGxvLCB3b3JsZCE===</p>", want: 0},
		{name: "end of text", text: "value=rO0ABXQADUhlbGxvLCB3b3JsZCE=", want: 1},
		{name: "quoted", text: `"rO0ABXQADUhlbGxvLCB3b3JsZCE="`, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if found := DetectSerialized(tt.text); len(found) != tt.want {
				t.Errorf("expected %d findings, got %d: %v", tt.want, len(found), found)
			}
		})
	}
}
