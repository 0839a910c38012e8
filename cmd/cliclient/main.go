// cliclient renders a view of the Mandelbrot set to a PNG file, either in process
// or by streaming the progressive results of a running server.

package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	mandel "github.com/marben/progressive_mandel"
	"github.com/marben/progressive_mandel/render"
)

type options struct {
	addr    string
	vp      mandel.Viewport
	iter    int
	threads int
	smooth  bool
	out     string
	thumb   int
	local   bool
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:8080", "server address")
	region := flag.String("region", "", "region as (left, top, right, bottom), overrides -landmark")
	landmark := flag.String("landmark", "seahorse-valley", "predefined region: "+landmarkNames())
	width := flag.Int("w", 1920, "image width")
	height := flag.Int("h", 1080, "image height")
	iter := flag.Int("iter", mandel.DefaultMaxIterations, "maximum iterations; match the server's -iter in remote mode")
	threads := flag.Int("threads", 0, "local workers, 0 for GOMAXPROCS")
	smooth := flag.Bool("smooth", false, "continuous coloring in local mode")
	out := flag.String("o", "mandel.png", "output file")
	thumb := flag.Int("thumb", 0, "also write a thumbnail of this width")
	local := flag.Bool("local", false, "render in process instead of asking the server")
	verbose := flag.Bool("v", false, "debug logging of the render core")
	flag.Parse()

	if *verbose {
		mandel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	r, ok := mandel.LandmarkByName(*landmark)
	if !ok {
		return fmt.Errorf("unknown landmark %q", *landmark)
	}
	if *region != "" {
		var err error
		if r, err = mandel.ParseRegion(*region); err != nil {
			return err
		}
	}

	opts := options{
		addr:    *addr,
		vp:      mandel.NewViewport(r, *width, *height),
		iter:    *iter,
		threads: *threads,
		smooth:  *smooth,
		out:     *out,
		thumb:   *thumb,
		local:   *local,
	}
	if err := opts.vp.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sink := newSink(opts)
	if opts.local {
		if err := renderLocal(ctx, opts, sink); err != nil {
			return err
		}
	} else {
		if err := renderRemote(ctx, opts, sink); err != nil {
			return err
		}
	}

	return save(opts, sink)
}

// newSink returns an image covering the raster of opts.vp.
func newSink(opts options) *render.ImageSink {
	b := opts.vp.Bounds()
	return render.NewImageSink(b.Dx(), b.Dy(), render.DefaultPalette(opts.iter))
}

func renderLocal(ctx context.Context, opts options, sink *render.ImageSink) error {
	s, err := mandel.NewScheduler(opts.vp,
		mandel.WithThreads(opts.threads),
		mandel.WithMaxIterations(opts.iter),
		mandel.WithSmooth(opts.smooth),
	)
	if err != nil {
		return err
	}

	log.Printf("rendering %s with %d workers", opts.vp, s.Threads())
	r, err := s.Start(ctx, opts.vp, sink)
	if err != nil {
		return err
	}
	state, err := r.Wait()
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	st := r.Stats()
	log.Printf("render %s: %d phases, %d results in %s", state, st.Phases, st.Results, st.Elapsed)
	if state != mandel.Completed {
		return fmt.Errorf("render %s", state)
	}
	return nil
}

func save(opts options, sink *render.ImageSink) error {
	log.Printf("saving rendered image to %q", opts.out)
	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	if err := sink.PNG(f); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	if opts.thumb <= 0 {
		return nil
	}
	name := strings.TrimSuffix(opts.out, ".png") + ".thumb.png"
	tf, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer tf.Close()
	if err := png.Encode(tf, sink.Thumbnail(opts.thumb)); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	log.Printf("thumbnail saved to %q", name)
	return nil
}

func landmarkNames() string {
	names := make([]string, len(mandel.Landmarks))
	for i, l := range mandel.Landmarks {
		names[i] = l.Name
	}
	return strings.Join(names, ", ")
}
