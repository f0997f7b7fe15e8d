package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTextLoader_LoadTxtFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	writeFile(t, path, "Hello World")

	loader := NewTextLoader()
	doc, err := loader.Load(context.Background(), path)

	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if doc.Content != "Hello World" {
		t.Errorf("unexpected content: %s", doc.Content)
	}
	if doc.Name != "test.txt" {
		t.Errorf("unexpected name: %s", doc.Name)
	}
	if doc.ID != generateDocID(path) {
		t.Errorf("document ID should be derived from the path")
	}
}

func TestTextLoader_SupportedExtensions(t *testing.T) {
	exts := NewTextLoader().SupportedExtensions()

	found := false
	for _, e := range exts {
		if e == ".txt" {
			found = true
		}
	}
	if !found {
		t.Error(".txt should be supported")
	}
}

func TestMultiLoader_DispatchByExtension(t *testing.T) {
	dir := t.TempDir()
	txtPath := filepath.Join(dir, "test.txt")
	mdPath := filepath.Join(dir, "TEST.MD")
	writeFile(t, txtPath, "txt content")
	writeFile(t, mdPath, "# Markdown")

	loader := NewMultiLoader()

	txt, err := loader.Load(context.Background(), txtPath)
	if err != nil {
		t.Fatalf("load txt: %v", err)
	}
	md, err := loader.Load(context.Background(), mdPath)
	if err != nil {
		t.Fatalf("load md: %v", err)
	}

	if txt.Content != "txt content" {
		t.Error("txt not loaded correctly")
	}
	if md.Content != "# Markdown" {
		t.Error("md not loaded correctly")
	}
}

func TestMultiLoader_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.png")
	writeFile(t, path, "\x89PNG")

	_, err := NewMultiLoader().Load(context.Background(), path)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestMultiLoader_AllExtensions(t *testing.T) {
	exts := NewMultiLoader().SupportedExtensions()
	want := []string{".markdown", ".md", ".pdf", ".txt"}

	if len(exts) != len(want) {
		t.Fatalf("expected %v, got %v", want, exts)
	}
	for i := range want {
		if exts[i] != want[i] {
			t.Errorf("expected %v, got %v", want, exts)
		}
	}
}

func TestPDFLoader_RejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	writeFile(t, path, "this is not a pdf")

	if _, err := NewPDFLoader().Load(context.Background(), path); err == nil {
		t.Error("should error on a file without a PDF header")
	}
}

func TestLoader_NonexistentFile(t *testing.T) {
	_, err := NewTextLoader().Load(context.Background(), "/nonexistent/file.txt")

	if err == nil {
		t.Error("should error on nonexistent file")
	}
}

func TestLoader_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	writeFile(t, path, "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTextLoader().Load(ctx, path); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCleanPDFContent(t *testing.T) {
	got := cleanPDFContent("  T-shirt\x00 sizes\x07\n尺码\tXL  ")
	if got != "T-shirt sizes\n尺码\tXL" {
		t.Errorf("unexpected cleaned content: %q", got)
	}
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "notes", "b.md"), "b")
	writeFile(t, filepath.Join(dir, "notes", "deep", "c.md"), "c")
	writeFile(t, filepath.Join(dir, "notes", "skip.bin"), "x")
	writeFile(t, filepath.Join(dir, "explicit.bin"), "x")

	m := NewMultiLoader()

	t.Run("glob", func(t *testing.T) {
		got, err := m.Expand([]string{filepath.Join(dir, "**", "*.md")})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 markdown files, got %v", got)
		}
	})

	t.Run("directory", func(t *testing.T) {
		got, err := m.Expand([]string{filepath.Join(dir, "notes")})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("expected b.md and c.md, got %v", got)
		}
	})

	t.Run("explicit and duplicates", func(t *testing.T) {
		a := filepath.Join(dir, "a.txt")
		got, err := m.Expand([]string{a, filepath.Join(dir, "*.txt"), filepath.Join(dir, "explicit.bin")})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0] != a || got[1] != filepath.Join(dir, "explicit.bin") {
			t.Errorf("unexpected expansion: %v", got)
		}
	})

	t.Run("no match", func(t *testing.T) {
		got, err := m.Expand([]string{filepath.Join(dir, "*.pdf")})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("expected nothing, got %v", got)
		}
	})
}
