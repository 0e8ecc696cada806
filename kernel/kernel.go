package kernel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Executor runs the code carried by an execute_request. emit publishes an
// iopub message (e.g. "stream", "execute_result") while execution is in
// progress; the kernel wraps every call to Execute with the busy/idle status
// messages spec §4.J requires.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest, emit func(msgType string, content any)) (ExecuteReply, error)
}

// Kernel serves shell and control requests over a Transport, enforcing the
// iopub ordering guarantees: status{busy} precedes any output for a
// request, status{idle} is the final iopub message for that request, and
// the shell reply is sent only after idle.
type Kernel struct {
	transport Transport
	signer    *Signer
	session   string
	username  string
	executor  Executor

	mu             sync.Mutex
	executionCount int

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewKernel constructs a Kernel bound to transport, signing outgoing
// messages with signer and running code through executor.
func NewKernel(transport Transport, signer *Signer, session, username string, executor Executor) *Kernel {
	return &Kernel{
		transport: transport,
		signer:    signer,
		session:   session,
		username:  username,
		executor:  executor,
		shutdown:  make(chan struct{}),
	}
}

// Run serves the shell and control channels until ctx is cancelled or a
// shutdown_request is handled.
func (k *Kernel) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-k.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); k.serve(ctx, Shell, shellHandlers) }()
	go func() { defer wg.Done(); k.serve(ctx, Control, controlHandlers) }()
	wg.Wait()
}

func (k *Kernel) serve(ctx context.Context, ch Channel, table map[string]handlerFunc) {
	for {
		f, err := k.transport.Recv(ctx, ch)
		if err != nil {
			return
		}
		k.dispatch(ctx, f, table)
	}
}

func (k *Kernel) dispatch(ctx context.Context, f Frame, table map[string]handlerFunc) {
	if !k.signer.Verify(f) {
		return
	}
	var header Header
	if err := json.Unmarshal(f.Header, &header); err != nil {
		return
	}
	handler, ok := table[header.MsgType]
	if !ok {
		return
	}
	handler(ctx, k, header, f)
}

func decodeContent(f Frame, out any) error {
	return json.Unmarshal(f.Content, out)
}

func (k *Kernel) nextExecutionCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.executionCount++
	return k.executionCount
}

func (k *Kernel) requestShutdown() {
	k.shutdownOnce.Do(func() { close(k.shutdown) })
}

func (k *Kernel) publishIOPub(ctx context.Context, parent Header, msgType string, content any) error {
	return k.send(ctx, IOPub, parent, msgType, content)
}

func (k *Kernel) sendShellReply(ctx context.Context, parent Header, msgType string, content any) error {
	return k.send(ctx, Shell, parent, msgType, content)
}

func (k *Kernel) sendControlReply(ctx context.Context, parent Header, msgType string, content any) error {
	return k.send(ctx, Control, parent, msgType, content)
}

func (k *Kernel) send(ctx context.Context, ch Channel, parent Header, msgType string, content any) error {
	msg := Message{
		Header:       NewHeader(uuid.NewString(), msgType, k.username, k.session, time.Now()),
		ParentHeader: &parent,
		Content:      content,
	}
	frame, err := k.signer.Encode(msg)
	if err != nil {
		return err
	}
	return k.transport.Send(ctx, ch, frame)
}
