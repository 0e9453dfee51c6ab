package worker

// Message kinds understood by the worker's internal protocol.
const (
	// KindCheckGPU asks whether hardware acceleration is available.
	KindCheckGPU = "checkWebGPUAvailability"
	// KindReturn is the reply kind; it echoes the request's uuid.
	KindReturn = "return"
)

// Message is one frame of the worker's async RPC protocol. The caller picks
// the uuid; the reply echoes it so callers can match replies to pending
// requests.
type Message struct {
	Kind    string `json:"kind"`
	UUID    string `json:"uuid"`
	Content any    `json:"content,omitempty"`
}
