package downlink

// Sender publishes a downlink payload to a target device. Delivery is
// fire-and-forget; implementations report publish failures but no device
// acknowledgment is assumed.
type Sender interface {
	Send(deviceEUI string, payload []byte, port int) error
}

// Func adapts a function to the Sender interface.
type Func func(deviceEUI string, payload []byte, port int) error

func (f Func) Send(deviceEUI string, payload []byte, port int) error {
	return f(deviceEUI, payload, port)
}
