package provisioner

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGCloudLatestImages(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{
		Stdout: "hpc-image-v44\nhpc-image-v43\nhpc-image-v42\n",
	}}}
	g := NewGCloud("build-project", runner, testLogger(t))

	images, err := g.LatestImages(context.Background(), "img-project", "hpc-family", 3)
	if err != nil {
		t.Fatalf("LatestImages: %v", err)
	}
	if len(images) != 3 || images[0] != "hpc-image-v44" {
		t.Errorf("images = %v", images)
	}

	call := strings.Join(runner.calls[0], " ")
	for _, want := range []string{
		"gcloud compute images list",
		"--project=img-project",
		"--no-standard-images",
		"--show-deprecated",
		"--filter=family=hpc-family",
		"--sort-by=~name",
		"--limit 3",
	} {
		if !strings.Contains(call, want) {
			t.Errorf("call missing %q: %s", want, call)
		}
	}
}

func TestGCloudLatestImagesEmpty(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{Stdout: "\n"}}}
	g := NewGCloud("build-project", runner, testLogger(t))

	_, err := g.LatestImages(context.Background(), "img-project", "empty-family", 2)
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
}

func TestGCloudLatestImagesCommandFailure(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{Stderr: "permission denied", ExitCode: 1}}}
	g := NewGCloud("build-project", runner, testLogger(t))

	_, err := g.LatestImages(context.Background(), "img-project", "hpc-family", 2)
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected error with tool output, got %v", err)
	}
}

func TestGCloudSerialConsoleOutput(t *testing.T) {
	runner := &fakeRunner{results: []CommandResult{{Stdout: "kernel: boot ok"}}}
	g := NewGCloud("build-project", runner, testLogger(t))

	out, err := g.SerialConsoleOutput(context.Background(), &Deployment{
		Name: "bench-abc123",
		Zone: "us-central1-a",
	})
	if err != nil {
		t.Fatalf("SerialConsoleOutput: %v", err)
	}
	if out != "kernel: boot ok" {
		t.Errorf("output = %q", out)
	}

	call := strings.Join(runner.calls[0], " ")
	for _, want := range []string{
		"get-serial-port-output bench-abc123-0",
		"--port 1",
		"--zone us-central1-a",
		"--project build-project",
	} {
		if !strings.Contains(call, want) {
			t.Errorf("call missing %q: %s", want, call)
		}
	}
}
