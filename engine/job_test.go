package engine_test

import (
	"testing"
	"time"

	"github.com/franksops/gonewer/engine"
	"github.com/franksops/gonewer/newer"
	"github.com/franksops/gonewer/provider"
)

func TestJobChannel(t *testing.T) {
	ch := make(engine.JobChannel, 1)

	src := &newer.Source{
		Path:     "/tmp/src/foo.txt",
		Relative: "foo.txt",
		Info:     provider.NewFileInfo("foo.txt", 3, false, time.Unix(100, 0)),
	}
	ch <- engine.CopyJob{ID: "j1", Source: src, DestinationPath: "/tmp/out/foo.txt"}
	received := <-ch

	if received.Source != src {
		t.Error("job must carry the source by reference")
	}
	if received.DestinationPath != "/tmp/out/foo.txt" {
		t.Errorf("Expected /tmp/out/foo.txt, got %s", received.DestinationPath)
	}
}
