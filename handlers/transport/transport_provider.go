package transport

import (
	"context"

	"glosskit/core"
)

// ITransportService is one connected client session.
type ITransportService interface {
	core.IService
	Connect() error
	SendRawOutput(data core.RawData) error
	// StartReceiving blocks, delivering frames until the connection ends.
	// A clean close reports nothing on errorChan.
	StartReceiving(outputChan chan<- core.RawData, errorChan chan<- error)
	RemoteAddr() string
}

// ITransportProvider accepts client sessions and runs the registered job
// handler once per session.
type ITransportProvider interface {
	Start() error
	Stop() error
	RegisterJobHandler(
		func(svc ITransportService, ctx context.Context) error,
	) error
}
