package hooq

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"
	"time"
)

// fieldMap indexes string fields by key for assertions.
func fieldMap(t *testing.T, fields []FormField) map[string]string {
	t.Helper()
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.File == nil {
			out[f.Key] = f.Value
		}
	}
	return out
}

func TestEncodeForm_NestedObjects(t *testing.T) {
	fields, err := encodeForm(map[string]any{
		"a": map[string]any{"b": "x"},
	}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}
	got := fieldMap(t, fields)
	if got["a[b]"] != "x" {
		t.Errorf(`expected a[b] = "x", got %v`, got)
	}
}

func TestEncodeForm_Arrays(t *testing.T) {
	fields, err := encodeForm(map[string]any{
		"a": []any{1, 2},
	}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}
	got := fieldMap(t, fields)
	if got["a[0]"] != "1" || got["a[1]"] != "2" {
		t.Errorf("expected a[0]=1 a[1]=2, got %v", got)
	}
	if _, exists := got["a"]; exists {
		t.Error("primitive array elements must use indexed keys, not a bare repeated key")
	}
}

func TestEncodeForm_ArrayOfObjects(t *testing.T) {
	fields, err := encodeForm(map[string]any{
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}
	got := fieldMap(t, fields)
	if got["items[0][name]"] != "first" || got["items[1][name]"] != "second" {
		t.Errorf("unexpected fields: %v", got)
	}
}

func TestEncodeForm_BoolStyles(t *testing.T) {
	tests := []struct {
		style BoolStyle
		yes   string
		no    string
	}{
		{BoolTrueFalse, "true", "false"},
		{BoolNumeric, "1", "0"},
	}
	for _, tt := range tests {
		fields, err := encodeForm(map[string]any{"on": true, "off": false}, tt.style)
		if err != nil {
			t.Fatalf("encodeForm: %v", err)
		}
		got := fieldMap(t, fields)
		if got["on"] != tt.yes || got["off"] != tt.no {
			t.Errorf("style %v: got %v, want on=%s off=%s", tt.style, got, tt.yes, tt.no)
		}
	}
}

func TestEncodeForm_Time(t *testing.T) {
	ts := time.Date(2024, 2, 29, 8, 15, 0, 0, time.UTC)
	fields, err := encodeForm(map[string]any{"created_at": ts}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}
	got := fieldMap(t, fields)
	if want := ts.Format(time.RFC3339); got["created_at"] != want {
		t.Errorf("created_at = %q, want %q", got["created_at"], want)
	}
}

func TestEncodeForm_NullAndAbsent(t *testing.T) {
	fields, err := encodeForm(map[string]any{
		"explicit": nil,
		"nested":   map[string]any{"inner": nil},
	}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}
	got := fieldMap(t, fields)
	if got["explicit"] != "null" {
		t.Errorf(`explicit nil should serialize as "null", got %q`, got["explicit"])
	}
	if got["nested[inner]"] != "null" {
		t.Errorf(`nested nil should serialize as "null", got %q`, got["nested[inner]"])
	}
	// Absent keys simply do not appear.
	if len(fields) != 2 {
		t.Errorf("expected exactly 2 fields, got %d: %v", len(fields), fields)
	}
}

func TestEncodeForm_OmitemptyStructFields(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Note  string `json:"note,omitempty"`
		Count int    `json:"count"`
	}
	fields, err := encodeForm(payload{Name: "a"}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}
	got := fieldMap(t, fields)
	if _, exists := got["note"]; exists {
		t.Error("omitempty zero field should produce no pair")
	}
	if got["name"] != "a" || got["count"] != "0" {
		t.Errorf("unexpected fields: %v", got)
	}
}

func TestEncodeForm_TypedNilFile(t *testing.T) {
	var f *File
	fields, err := encodeForm(map[string]any{"avatar": f}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}
	got := fieldMap(t, fields)
	if got["avatar"] != "null" {
		t.Errorf(`nil *File is an explicit null, want "null", got %q`, got["avatar"])
	}
}

func TestEncodeForm_Files(t *testing.T) {
	fields, err := encodeForm(map[string]any{
		"avatar": &File{Name: "me.png", ContentType: "image/png", Content: strings.NewReader("png-bytes")},
		"docs": []any{
			&File{Name: "a.txt", Content: strings.NewReader("aaa")},
		},
	}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}

	var avatar, doc *FormField
	for i := range fields {
		switch fields[i].Key {
		case "avatar":
			avatar = &fields[i]
		case "docs[0]":
			doc = &fields[i]
		}
	}
	if avatar == nil || avatar.File == nil || avatar.File.Name != "me.png" {
		t.Fatalf("missing avatar file part: %+v", fields)
	}
	if doc == nil || doc.File == nil || doc.File.Name != "a.txt" {
		t.Fatalf("missing docs[0] file part: %+v", fields)
	}
}

func TestEncodeForm_VerbatimBracketKey(t *testing.T) {
	fields, err := encodeForm(map[string]any{
		"image[file]": "direct",
		"image":       map[string]any{"alt": "nested"},
	}, BoolTrueFalse)
	if err != nil {
		t.Fatalf("encodeForm: %v", err)
	}
	got := fieldMap(t, fields)
	if got["image[file]"] != "direct" {
		t.Errorf("pre-bracketed key should pass through verbatim: %v", got)
	}
	if got["image[alt]"] != "nested" {
		t.Errorf("nested notation should coexist: %v", got)
	}
}

func TestWriteForm(t *testing.T) {
	fields := []FormField{
		{Key: "name", Value: "hooq"},
		{Key: "file", File: &File{Name: "x.bin", Content: bytes.NewReader([]byte{1, 2, 3})}},
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeForm(w, fields); err != nil {
		t.Fatalf("writeForm: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, params, err := mime.ParseMediaType(w.FormDataContentType())
	if err != nil {
		t.Fatalf("parse content type: %v", err)
	}
	r := multipart.NewReader(&buf, params["boundary"])
	form, err := r.ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	defer form.RemoveAll()

	if got := form.Value["name"]; len(got) != 1 || got[0] != "hooq" {
		t.Errorf("name = %v", got)
	}
	files := form.File["file"]
	if len(files) != 1 || files[0].Filename != "x.bin" {
		t.Fatalf("file parts = %v", files)
	}
	f, err := files[0].Open()
	if err != nil {
		t.Fatalf("open part: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("file content = %v", data)
	}
}
