package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/coder/websocket"

	mandel "github.com/marben/progressive_mandel"
	"github.com/marben/progressive_mandel/wire"
)

// session renders for one websocket client.
// Every command that changes the view cancels the running render and starts a new one
// with the next sequence number; frames and events carry that number so the client
// can drop whatever belongs to a render it has moved away from.
type session struct {
	conn  *websocket.Conn
	sched *mandel.Scheduler
	batch int

	defaultView mandel.Viewport
	vp          mandel.Viewport
	seq         uint32
	render      *mandel.Render

	// writeFrame sends one binary frame, conn.Write unless replaced
	writeFrame func(ctx context.Context, frame []byte) error
}

func newSession(conn *websocket.Conn, defaultView mandel.Viewport, batch int, opts ...mandel.Option) (*session, error) {
	sched, err := mandel.NewScheduler(defaultView, opts...)
	if err != nil {
		return nil, fmt.Errorf("mandel.NewScheduler: %w", err)
	}
	return &session{
		conn:        conn,
		sched:       sched,
		batch:       batch,
		defaultView: defaultView,
		vp:          defaultView,
		writeFrame: func(ctx context.Context, frame []byte) error {
			return conn.Write(ctx, websocket.MessageBinary, frame)
		},
	}, nil
}

// serve reads commands until the client goes away.
func (s *session) serve(ctx context.Context) error {
	defer s.conn.CloseNow()
	defer s.stop()

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("conn.Read: %w", err)
		}
		if typ != websocket.MessageText {
			s.sendError(ctx, errors.New("commands must be text messages"))
			continue
		}

		cmd, err := wire.DecodeCommand(data)
		if err != nil {
			s.sendError(ctx, err)
			continue
		}
		if err := s.handle(ctx, cmd); err != nil {
			return err
		}
	}
}

func (s *session) handle(ctx context.Context, cmd wire.Command) error {
	if cmd.Op == wire.OpCancel {
		if s.render != nil {
			s.render.Cancel()
		}
		return nil
	}

	from := s.vp
	if cmd.Op == wire.OpView && cmd.Region == nil && cmd.Width == 0 && cmd.Height == 0 {
		from = s.defaultView
	}
	vp, err := cmd.Apply(from)
	if err != nil {
		s.sendError(ctx, err)
		return nil
	}
	return s.restart(ctx, vp)
}

func (s *session) restart(ctx context.Context, vp mandel.Viewport) error {
	seq := s.seq + 1

	// frames wait until the started event of their render is on the wire
	started := make(chan struct{})
	batcher := wire.NewBatcher(seq, s.batch, func(frame []byte) error {
		select {
		case <-started:
		case <-ctx.Done():
			return ctx.Err()
		}
		return s.writeFrame(ctx, frame)
	})
	r, err := s.sched.Restart(ctx, vp, batcher)
	if err != nil {
		s.sendError(ctx, err)
		return nil
	}
	s.seq = seq
	s.vp = vp
	s.render = r

	err = s.sendEvent(ctx, wire.StartedEvent(seq, vp))
	close(started)
	if err != nil {
		r.Cancel()
		return err
	}

	go func() {
		state, err := r.Wait()
		if ferr := batcher.Flush(); ferr != nil && err == nil {
			log.Printf("render %d: flush: %v", seq, ferr)
			err = fmt.Errorf("flush: %w", ferr)
		}
		log.Printf("render %d %s: %s", seq, vp, state)
		if err := s.sendEvent(ctx, wire.DoneEvent(seq, r.Stats(), err)); err != nil {
			log.Printf("render %d: %v", seq, err)
		}
	}()
	return nil
}

// stop cancels the running render and waits for its workers.
func (s *session) stop() {
	if s.render != nil {
		s.render.Cancel()
		s.render.Wait()
	}
}

func (s *session) sendEvent(ctx context.Context, ev wire.Event) error {
	b, err := wire.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("wire.EncodeEvent: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("conn.Write: %w", err)
	}
	return nil
}

func (s *session) sendError(ctx context.Context, err error) {
	log.Printf("session: %v", err)
	if werr := s.sendEvent(ctx, wire.Event{Type: wire.EventError, Seq: s.seq, Error: err.Error()}); werr != nil {
		log.Printf("session: %v", werr)
	}
}
