package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// webServer creates server serving files in ./static folder
// initializes websocket endpoint and returns sessionListener accepting websocket connections
func webServer(ctx context.Context, port int) (*sessionListener, *http.Server) {
	l := newSessionListener(ctx, fmt.Sprintf(":%d/ws", port))
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", websocketHandler(l))
	mux.Handle("/", http.FileServer(http.Dir("./static")))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("listening on http://localhost:%d", port)
	return l, srv
}

// websocketHandler handles the http ws endpoint
// if websocket is succesfully initialized it is passed to sessionListener so it can be accepted
func websocketHandler(l *sessionListener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // TODO: restrict to the static site's origin once it is deployed behind a domain
		})
		if err != nil {
			log.Println(err)
			return
		}
		log.Printf("got connection from: %s", r.RemoteAddr)

		select {
		case l.ch <- c:
		case <-l.ctx.Done():
			c.Close(websocket.StatusGoingAway, "server shutting down")
		}
	}
}

// sessionListener hands accepted websocket connections to the session loop
type sessionListener struct {
	ch     chan *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	addr   string
}

func newSessionListener(ctx context.Context, addr string) *sessionListener {
	ctx, cancel := context.WithCancel(ctx)
	return &sessionListener{
		ch:     make(chan *websocket.Conn),
		ctx:    ctx,
		cancel: cancel,
		addr:   addr,
	}
}

// Accept waits for the next websocket connection.
// It returns net.ErrClosed after Close.
func (l *sessionListener) Accept() (*websocket.Conn, error) {
	select {
	case c := <-l.ch:
		return c, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

func (l *sessionListener) Addr() string {
	return l.addr
}

func (l *sessionListener) Close() error {
	l.cancel()
	return nil
}
