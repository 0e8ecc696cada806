package kernel

import "context"

// Transport moves signed Frames over one of the kernel's five channels. It
// is the pluggable seam spec §4.J leaves open: this package ships a
// loopback, in-process implementation as the default; ZeroMQ (what the
// reference kernel uses) is a documented extension point, since no example
// in this corpus vendors a ZeroMQ binding.
type Transport interface {
	Send(ctx context.Context, ch Channel, f Frame) error
	Recv(ctx context.Context, ch Channel) (Frame, error)
}

// LoopbackTransport is an in-process Transport backed by Go channels. Two
// instances created via NewLoopbackPair are cross-wired: one side's Send on
// a channel is delivered to the other side's Recv on the same channel.
type LoopbackTransport struct {
	outbound map[Channel]chan Frame
	inbound  map[Channel]chan Frame
}

var allChannels = []Channel{Shell, IOPub, Stdin, Control, Heartbeat}

// NewLoopbackPair constructs a connected client/kernel transport pair.
func NewLoopbackPair() (client, kernelSide *LoopbackTransport) {
	c2k := make(map[Channel]chan Frame, len(allChannels))
	k2c := make(map[Channel]chan Frame, len(allChannels))
	for _, ch := range allChannels {
		c2k[ch] = make(chan Frame, 64)
		k2c[ch] = make(chan Frame, 64)
	}
	client = &LoopbackTransport{outbound: c2k, inbound: k2c}
	kernelSide = &LoopbackTransport{outbound: k2c, inbound: c2k}
	return client, kernelSide
}

func (t *LoopbackTransport) Send(ctx context.Context, ch Channel, f Frame) error {
	select {
	case t.outbound[ch] <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *LoopbackTransport) Recv(ctx context.Context, ch Channel) (Frame, error) {
	select {
	case f := <-t.inbound[ch]:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}
