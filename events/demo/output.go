package demo

type DemoCaptionEvent struct {
	Caption string
	Scene   int
}

func (e *DemoCaptionEvent) GetId() string   { return "demo.caption" }
func (e *DemoCaptionEvent) ExternalOutput() {}

type DemoCompleteEvent struct{}

func (e *DemoCompleteEvent) GetId() string   { return "demo.complete" }
func (e *DemoCompleteEvent) ExternalOutput() {}
