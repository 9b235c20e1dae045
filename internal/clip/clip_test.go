package clip

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func stub(t *testing.T, native, osc func(string) error) {
	t.Helper()
	oldNative, oldOSC, oldTemp := nativeWriteAll, osc52WriteAll, tempDir
	t.Cleanup(func() {
		nativeWriteAll, osc52WriteAll, tempDir = oldNative, oldOSC, oldTemp
	})
	nativeWriteAll, osc52WriteAll = native, osc
	dir := t.TempDir()
	tempDir = func() string { return dir }
}

func fail(msg string) func(string) error {
	return func(string) error { return errors.New(msg) }
}

func TestWriteAll_NativeSuccess(t *testing.T) {
	stub(t, func(string) error { return nil }, func(string) error {
		t.Fatal("osc52 should not be called when native succeeds")
		return nil
	})

	got, err := WriteAll("hello")
	if err != nil {
		t.Fatalf("WriteAll returned error: %v", err)
	}
	if got.Method != MethodNative || got.FilePath != "" {
		t.Fatalf("got %+v, want native without file", got)
	}
	if got.String() != "copied to clipboard" {
		t.Errorf("String() = %q", got.String())
	}
}

func TestWriteAll_OSC52Fallback(t *testing.T) {
	var copied string
	stub(t, fail("no display"), func(s string) error { copied = s; return nil })

	got, err := WriteAll("hello")
	if err != nil {
		t.Fatalf("WriteAll returned error: %v", err)
	}
	if got.Method != MethodOSC52 {
		t.Fatalf("Method=%q, want %q", got.Method, MethodOSC52)
	}
	if copied != "hello" {
		t.Errorf("osc52 received %q", copied)
	}
}

func TestWriteAll_FileFallback(t *testing.T) {
	stub(t, fail("no display"), fail("not a tty"))

	got, err := WriteAll("# Launch\n\ntranscript")
	if err != nil {
		t.Fatalf("WriteAll returned error: %v", err)
	}
	if got.Method != MethodFile || got.FilePath == "" {
		t.Fatalf("got %+v, want file fallback", got)
	}
	if !strings.HasSuffix(got.FilePath, ".md") {
		t.Errorf("expected a markdown file, got %s", got.FilePath)
	}
	data, err := os.ReadFile(got.FilePath)
	if err != nil {
		t.Fatalf("reading fallback file: %v", err)
	}
	if string(data) != "# Launch\n\ntranscript" {
		t.Errorf("file content = %q", data)
	}
	if !strings.Contains(got.String(), got.FilePath) {
		t.Errorf("String() = %q should mention the file", got.String())
	}
}

func TestWriteAll_AllMethodsFail(t *testing.T) {
	stub(t, fail("no display"), fail("not a tty"))
	tempDir = func() string { return "/nonexistent/teamflow/dir" }

	if _, err := WriteAll("hello"); err == nil {
		t.Fatal("expected error when the temp file cannot be created")
	}
}

func TestWriteAll_EmptyText(t *testing.T) {
	stub(t, func(string) error {
		t.Fatal("native should not be called for empty text")
		return nil
	}, fail("unused"))

	if _, err := WriteAll(""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestWriteOSC52(t *testing.T) {
	oldIsTerminal := isTerminal
	t.Cleanup(func() { isTerminal = oldIsTerminal })
	t.Setenv("TMUX", "")
	t.Setenv("STY", "")

	var buf bytes.Buffer
	isTerminal = func(io.Writer) bool { return false }
	if err := writeOSC52(&buf, "hello"); err == nil {
		t.Fatal("expected error when output is not a terminal")
	}

	isTerminal = func(io.Writer) bool { return true }
	if err := writeOSC52(&buf, "hello"); err != nil {
		t.Fatalf("writeOSC52: %v", err)
	}
	// base64("hello") = aGVsbG8=
	if !strings.Contains(buf.String(), "aGVsbG8=") {
		t.Errorf("sequence %q does not carry the payload", buf.String())
	}

	if err := writeOSC52(&buf, strings.Repeat("x", osc52LimitBytes+1)); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestResult_StringUnknown(t *testing.T) {
	if got := (Result{}).String(); got != "not copied" {
		t.Errorf("String() = %q", got)
	}
}
