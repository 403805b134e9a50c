package provisioner

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func TestTarDirectory(t *testing.T) {
	dir := t.TempDir()
	deployDir := filepath.Join(dir, "bench-abc123")
	if err := os.MkdirAll(filepath.Join(deployDir, "primary"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"main.tf":            "resource {}",
		"primary/config.yml": "instances: 8",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(deployDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	out := filepath.Join(dir, "bench-abc123.tar.gz")
	if err := TarDirectory(deployDir, out); err != nil {
		t.Fatalf("TarDirectory: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("archive is not gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading archive: %v", err)
		}
		names = append(names, hdr.Name)
		if content, ok := files[strings.TrimPrefix(hdr.Name, "bench-abc123/")]; ok {
			data, err := io.ReadAll(tr)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != content {
				t.Errorf("%s content = %q, want %q", hdr.Name, data, content)
			}
		}
	}

	sort.Strings(names)
	want := []string{
		"bench-abc123",
		"bench-abc123/main.tf",
		"bench-abc123/primary",
		"bench-abc123/primary/config.yml",
	}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestGSUtilUpload(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{}}}
	u := NewGSUtil(runner)

	if err := u.Upload(context.Background(), "/tmp/a.tar.gz", "debug-bucket"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	call := strings.Join(runner.calls[0], " ")
	if call != "gsutil cp /tmp/a.tar.gz gs://debug-bucket" {
		t.Errorf("call = %q", call)
	}
}

func TestGSUtilUploadFailure(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{Stderr: "AccessDenied", ExitCode: 1}}}
	u := NewGSUtil(runner)

	err := u.Upload(context.Background(), "/tmp/a.tar.gz", "debug-bucket")
	if err == nil || !strings.Contains(err.Error(), "AccessDenied") {
		t.Fatalf("expected error with tool output, got %v", err)
	}
}
