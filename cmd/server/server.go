package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"

	mandel "github.com/marben/progressive_mandel"
	"github.com/marben/progressive_mandel/wire"
)

// main is the entry point for the Mandelbrot server.
// Each websocket client gets its own scheduler; the server streams progressive results
// as binary frames and reports render lifecycle as json events.
func main() {
	if err := run(); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func run() error {
	port := flag.Int("port", 8080, "http and websocket port")
	threads := flag.Int("threads", 0, "workers per render, 0 for GOMAXPROCS")
	iter := flag.Int("iter", mandel.DefaultMaxIterations, "maximum iterations per pixel")
	smooth := flag.Bool("smooth", false, "report continuous escape counts")
	landmark := flag.String("landmark", "seahorse-valley", "region a plain view command renders")
	width := flag.Int("w", 1920, "default raster width")
	height := flag.Int("h", 1080, "default raster height")
	batch := flag.Int("batch", wire.DefaultBatchSize, fmt.Sprintf("results per websocket frame, at most %d", wire.MaxBatchSize))
	verbose := flag.Bool("v", false, "debug logging of the render core")
	flag.Parse()

	if *verbose {
		mandel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if *batch < 1 || *batch > wire.MaxBatchSize {
		return fmt.Errorf("-batch %d outside [1, %d]", *batch, wire.MaxBatchSize)
	}

	region, ok := mandel.LandmarkByName(*landmark)
	if !ok {
		return fmt.Errorf("unknown landmark %q", *landmark)
	}
	defaultView := mandel.NewViewport(region, *width, *height)

	opts := []mandel.Option{
		mandel.WithThreads(*threads),
		mandel.WithMaxIterations(*iter),
		mandel.WithSmooth(*smooth),
	}
	// fail on bad flags before anyone connects
	probe, err := mandel.NewScheduler(defaultView, opts...)
	if err != nil {
		return err
	}
	log.Printf("rendering with %d workers per client, %d max iterations, default view %s",
		probe.Threads(), probe.Evaluator().MaxIter, defaultView)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// WEBSOCKET
	sessions, httpServer := webServer(ctx, *port)

	// httpServer provides the static files along with websocket endpoint
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("httpServer: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		log.Printf("shutting down")
		sessions.Close()
		httpServer.Shutdown(context.Background())
	}()

	log.Printf("mb server waiting for websocket connections on %s", sessions.Addr())
	for {
		conn, err := sessions.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("sessions.Accept: %w", err)
		}

		go func() {
			s, err := newSession(conn, defaultView, *batch, opts...)
			if err != nil {
				log.Printf("err: new session: %v", err)
				conn.CloseNow()
				return
			}
			if err := s.serve(ctx); err != nil {
				log.Printf("err: session: %v", err)
			}
		}()
	}
}
