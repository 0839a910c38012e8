package main

import (
	"context"
	"fmt"
	"log"

	"github.com/coder/websocket"

	mandel "github.com/marben/progressive_mandel"
	"github.com/marben/progressive_mandel/wire"
)

// renderRemote asks the server at opts.addr for opts.vp and draws the streamed results into sink.
func renderRemote(ctx context.Context, opts options, sink mandel.Sink) error {
	url := fmt.Sprintf("ws://%s/ws", opts.addr)
	log.Printf("connecting to %s", url)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("websocket.Dial: %w", err)
	}
	defer conn.CloseNow()
	// a message as long as the limit already fails, hence the extra byte
	conn.SetReadLimit(int64(wire.FrameSize(wire.MaxBatchSize)) + 1)

	cmd, err := wire.EncodeCommand(wire.Command{
		Op:     wire.OpView,
		Region: wire.FromRegion(opts.vp.Region),
		Width:  opts.vp.Width,
		Height: opts.vp.Height,
	})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, cmd); err != nil {
		return fmt.Errorf("conn.Write: %w", err)
	}

	done, err := receive(ctx, conn, sink)
	if err != nil {
		return err
	}
	log.Printf("render %s: %d phases, %d results in %s", done.State, done.Phases, done.Results, done.Elapsed())
	if done.Error != "" {
		return fmt.Errorf("server render: %s", done.Error)
	}
	if done.State != mandel.Completed.String() {
		return fmt.Errorf("render %s", done.State)
	}

	return conn.Close(websocket.StatusNormalClosure, "")
}

// receive feeds frames of the render announced by the first started event into sink
// and returns its done event.
func receive(ctx context.Context, conn *websocket.Conn, sink mandel.Sink) (wire.Event, error) {
	var seq uint32
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return wire.Event{}, fmt.Errorf("conn.Read: %w", err)
		}

		if typ == websocket.MessageBinary {
			f, err := wire.DecodeFrame(data)
			if err != nil {
				return wire.Event{}, err
			}
			if seq == 0 || f.Seq != seq {
				continue
			}
			for _, r := range f.Results {
				sink.Accept(r)
			}
			continue
		}

		ev, err := wire.DecodeEvent(data)
		if err != nil {
			return wire.Event{}, err
		}
		switch ev.Type {
		case wire.EventError:
			return ev, fmt.Errorf("server: %s", ev.Error)
		case wire.EventStarted:
			if seq == 0 {
				seq = ev.Seq
				log.Printf("server started render %d of %dx%d", seq, ev.Width, ev.Height)
			}
		case wire.EventDone:
			if ev.Seq == seq {
				return ev, nil
			}
		}
	}
}
