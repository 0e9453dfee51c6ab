// Package gpu detects whether hardware acceleration is available for local
// inference.
package gpu

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Probe reports whether an accelerator is present. It never fails: any
// detection problem is answered with false. Safe to call repeatedly and
// concurrently; the result is a pure function of the environment.
func Probe(ctx context.Context) bool {
	available := probe(ctx)
	slog.Info("gpu: acceleration probe", "available", available)
	return available
}

func probe(_ context.Context) bool {
	// Explicit override wins, for machines where device detection lies.
	switch strings.ToLower(os.Getenv("LOCALCHAT_ACCELERATOR")) {
	case "1", "on", "true":
		return true
	case "0", "off", "false":
		return false
	}

	// Apple silicon exposes Metal unconditionally.
	if runtime.GOOS == "darwin" {
		return true
	}

	for _, dev := range []string{"/dev/nvidia0", "/dev/nvidiactl"} {
		if _, err := os.Stat(dev); err == nil {
			return true
		}
	}

	renderers, err := filepath.Glob("/dev/dri/renderD*")
	if err != nil {
		return false
	}
	return len(renderers) > 0
}
