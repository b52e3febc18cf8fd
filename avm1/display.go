package avm1

// FrameStatus answers WaitForFrame.
type FrameStatus int

const (
	// FrameLoaded lets execution continue.
	FrameLoaded FrameStatus = iota
	// FrameMissing skips the guarded actions.
	FrameMissing
	// FramePending suspends a frame script until the frame has streamed
	// in. Inside functions and blocks it behaves like FrameMissing.
	FramePending
)

// TimelineOp is a parameterless timeline action.
type TimelineOp int

const (
	TimelinePlay TimelineOp = iota
	TimelineStop
	TimelineNextFrame
	TimelinePrevFrame
	TimelineToggleQuality
	TimelineEndDrag
)

// DisplayHost receives the display-list actions. Frames are zero-based.
// Paths are target paths as scripts wrote them.
type DisplayHost interface {
	FrameStatus(target *Object, frame int) FrameStatus
	GotoFrame(target *Object, frame int, play bool)
	GotoLabel(target *Object, label string, play bool)
	Timeline(target *Object, op TimelineOp)
	GetProperty(path string, index int) Value
	SetProperty(path string, index int, v Value)
	CloneSprite(source, name string, depth int)
	RemoveSprite(path string)
	StartDrag(path string, lockCenter bool, bounds *[4]float64)
	// CallFrame returns the actions of a frame for the Call action, or nil.
	CallFrame(target *Object, frame string) []byte
	Parent(target *Object) Value
	TargetPath(target *Object) string
}

// NoDisplay is the DisplayHost used when none is configured: every frame is
// loaded and every display action is ignored.
type NoDisplay struct{}

func (NoDisplay) FrameStatus(*Object, int) FrameStatus { return FrameLoaded }
func (NoDisplay) GotoFrame(*Object, int, bool)         {}
func (NoDisplay) GotoLabel(*Object, string, bool)      {}
func (NoDisplay) Timeline(*Object, TimelineOp)         {}
func (NoDisplay) GetProperty(string, int) Value        { return Undefined }
func (NoDisplay) SetProperty(string, int, Value)       {}
func (NoDisplay) CloneSprite(string, string, int)      {}
func (NoDisplay) RemoveSprite(string)                  {}
func (NoDisplay) StartDrag(string, bool, *[4]float64)  {}
func (NoDisplay) CallFrame(*Object, string) []byte     { return nil }
func (NoDisplay) Parent(*Object) Value                 { return Undefined }
func (NoDisplay) TargetPath(*Object) string            { return "_level0" }
