package engine

// Notifier receives operator-visible events from a running engine. The GUI
// adapter and headless harnesses implement it; the engine never touches its
// host's state directly.
type Notifier interface {
	OnConnected(source string)
	OnDisconnected(err error)
	OnRecord(record map[string]any)
	OnFatal(err error)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) OnConnected(string)         {}
func (NopNotifier) OnDisconnected(error)       {}
func (NopNotifier) OnRecord(map[string]any)    {}
func (NopNotifier) OnFatal(error)              {}
