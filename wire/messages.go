package wire

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/bytedance/sonic"

	mandel "github.com/marben/progressive_mandel"
)

// Op names a client command.
type Op string

const (
	OpView   Op = "view"   // render Region at Width x Height
	OpPan    Op = "pan"    // move the view by DX, DY pixels
	OpZoom   Op = "zoom"   // zoom around pixel X, Y by Factor, or by 2^-Steps
	OpSelect Op = "select" // zoom to the pixel rectangle Rect
	OpCancel Op = "cancel" // stop the running render
)

var ErrUnknownOp = errors.New("wire: unknown op")

type Region struct {
	Xmin float64 `json:"xmin"`
	Xmax float64 `json:"xmax"`
	Ymin float64 `json:"ymin"`
	Ymax float64 `json:"ymax"`
}

func FromRegion(r mandel.Region) *Region {
	return &Region{Xmin: r.Xmin, Xmax: r.Xmax, Ymin: r.Ymin, Ymax: r.Ymax}
}

func (r Region) Mandel() mandel.Region {
	return mandel.Region{Xmin: r.Xmin, Xmax: r.Xmax, Ymin: r.Ymin, Ymax: r.Ymax}
}

type Rect struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Command is a text message sent by a client.
type Command struct {
	Op     Op      `json:"op"`
	Region *Region `json:"region,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	X      int     `json:"x,omitempty"`
	Y      int     `json:"y,omitempty"`
	DX     int     `json:"dx,omitempty"`
	DY     int     `json:"dy,omitempty"`
	Factor float64 `json:"factor,omitempty"`
	Steps  float64 `json:"steps,omitempty"`
	Rect   *Rect   `json:"rect,omitempty"`
}

// Apply returns the viewport c navigates to from vp.
// OpCancel leaves the viewport unchanged.
func (c Command) Apply(vp mandel.Viewport) (mandel.Viewport, error) {
	switch c.Op {
	case OpView:
		if c.Region != nil {
			vp.Region = c.Region.Mandel()
		}
		if c.Width > 0 {
			vp.Width = c.Width
		}
		if c.Height > 0 {
			vp.Height = c.Height
		}
	case OpPan:
		vp = vp.Pan(c.DX, c.DY)
	case OpZoom:
		switch {
		case c.Steps != 0:
			vp = vp.ZoomSteps(c.X, c.Y, c.Steps)
		case c.Factor > 0:
			vp = vp.Zoom(c.X, c.Y, c.Factor)
		default:
			return vp, fmt.Errorf("wire: zoom needs factor or steps")
		}
	case OpSelect:
		if c.Rect == nil {
			return vp, fmt.Errorf("wire: select needs rect")
		}
		vp = vp.Select(image.Rect(c.Rect.X0, c.Rect.Y0, c.Rect.X1, c.Rect.Y1))
	case OpCancel:
		return vp, nil
	default:
		return vp, fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
	}

	if err := vp.Validate(); err != nil {
		return vp, fmt.Errorf("wire: %s: %w", c.Op, err)
	}
	if vp.Width > MaxCoord || vp.Height > MaxCoord {
		return vp, fmt.Errorf("wire: %s: raster %dx%d larger than %d", c.Op, vp.Width, vp.Height, MaxCoord)
	}
	return vp, nil
}

// EventType names a server event.
type EventType string

const (
	EventStarted EventType = "started" // a render of Seq began
	EventDone    EventType = "done"    // render Seq finished; State is completed or cancelled
	EventError   EventType = "error"   // a command was rejected
)

// Event is a text message sent by the server.
type Event struct {
	Type      EventType `json:"type"`
	Seq       uint32    `json:"seq"`
	State     string    `json:"state,omitempty"`
	Region    *Region   `json:"region,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Phases    int       `json:"phases,omitempty"`
	Results   int64     `json:"results,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// StartedEvent announces render seq of vp.
func StartedEvent(seq uint32, vp mandel.Viewport) Event {
	return Event{Type: EventStarted, Seq: seq, Region: FromRegion(vp.Region), Width: vp.Width, Height: vp.Height}
}

// DoneEvent reports how render seq ended.
func DoneEvent(seq uint32, st mandel.Stats, err error) Event {
	ev := Event{
		Type:      EventDone,
		Seq:       seq,
		State:     st.State.String(),
		Phases:    st.Phases,
		Results:   st.Results,
		ElapsedMS: st.Elapsed.Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (e Event) Elapsed() time.Duration {
	return time.Duration(e.ElapsedMS) * time.Millisecond
}

func EncodeCommand(c Command) ([]byte, error) {
	return sonic.Marshal(c)
}

func DecodeCommand(b []byte) (Command, error) {
	var c Command
	if err := sonic.Unmarshal(b, &c); err != nil {
		return Command{}, fmt.Errorf("wire: decode command: %w", err)
	}
	return c, nil
}

func EncodeEvent(e Event) ([]byte, error) {
	return sonic.Marshal(e)
}

func DecodeEvent(b []byte) (Event, error) {
	var e Event
	if err := sonic.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("wire: decode event: %w", err)
	}
	return e, nil
}
