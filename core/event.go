package core

type IEvent interface {
	GetId() string // Returns the unique identifier of the event.
}

// IExternalOutputEvent is implemented by events that are delivered to the
// connected session client (the browser extension) by the transport output
// handler. Anything else stays inside the pipeline.
type IExternalOutputEvent interface {
	IEvent
	ExternalOutput()
}

// IExternalInputEvent is implemented by events decoded from the session
// client. The transport input handler pushes them down the pipeline so every
// handler can observe them.
type IExternalInputEvent interface {
	IEvent
	ExternalInput()
}
