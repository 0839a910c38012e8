package main

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	mandel "github.com/marben/progressive_mandel"
	"github.com/marben/progressive_mandel/render"
)

func TestRenderLocalAndSave(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		vp:      mandel.NewViewport(mandel.Classic, 40, 20),
		iter:    100,
		threads: 2,
		out:     filepath.Join(dir, "out.png"),
		thumb:   10,
	}
	sink := newSink(opts)
	if got := sink.Image().Bounds(); got != opts.vp.Bounds() {
		t.Fatalf("sink bounds %v, want %v", got, opts.vp.Bounds())
	}

	if err := renderLocal(context.Background(), opts, sink); err != nil {
		t.Fatalf("renderLocal: %v", err)
	}
	if err := save(opts, sink); err != nil {
		t.Fatalf("save: %v", err)
	}

	for name, w := range map[string]int{"out.png": 40, "out.thumb.png": 10} {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		cfg, err := png.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cfg.Width != w {
			t.Fatalf("%s: width %d, want %d", name, cfg.Width, w)
		}
	}
}

func TestRenderLocalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := options{vp: mandel.NewViewport(mandel.Classic, 40, 20), iter: 100, threads: 2}
	sink := render.NewImageSink(40, 20, render.DefaultPalette(100))

	if err := renderLocal(ctx, opts, sink); err == nil {
		t.Fatal("expected an error for a cancelled render")
	}
}
