package sim

import "fmt"

// EventKind classifies an Event.
type EventKind uint8

// Event kinds.
const (
	EventExecute EventKind = iota
	EventDraw
	EventSignal
	EventPresent
	EventResize
	EventRenderTargetView
	EventAllocatorReset
)

func (k EventKind) String() string {
	switch k {
	case EventExecute:
		return "Execute"
	case EventDraw:
		return "Draw"
	case EventSignal:
		return "Signal"
	case EventPresent:
		return "Present"
	case EventResize:
		return "Resize"
	case EventRenderTargetView:
		return "RenderTargetView"
	case EventAllocatorReset:
		return "AllocatorReset"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is one entry of the device log, recorded on the CPU timeline in
// call order.
type Event struct {
	Kind EventKind

	// Buffer is the back buffer index for draws, presents and views.
	Buffer uint32

	// Generation counts swap chain rebuilds. Views and draws from an older
	// generation reference destroyed buffers.
	Generation uint64

	// Value is the fence value of a signal.
	Value uint64

	Width, Height uint32
	VertexCount   uint32
	SyncInterval  uint32
}

// Count returns the number of events of kind k.
func Count(events []Event, k EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Filter returns the events of kind k.
func Filter(events []Event, k EventKind) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
