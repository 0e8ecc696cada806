package kernel

import "context"

// handlerFunc handles one verified, type-dispatched request. Each handler
// owns decoding its own content type from the frame and sending whatever
// replies are appropriate, mirroring the runtime's request-type dispatch
// idiom of delegating from a generic entry point to a concrete method per
// msg_type rather than a single switch with inline logic.
type handlerFunc func(ctx context.Context, k *Kernel, parent Header, f Frame)

var shellHandlers = map[string]handlerFunc{
	"kernel_info_request": handleKernelInfo,
	"execute_request":     handleExecute,
}

var controlHandlers = map[string]handlerFunc{
	"debug_request":    handleDebug,
	"shutdown_request": handleShutdown,
}

func handleKernelInfo(ctx context.Context, k *Kernel, parent Header, f Frame) {
	reply := KernelInfoReply{
		Status:          "ok",
		ProtocolVersion: ProtocolVersion,
		Implementation:  "agentmesh-kernel",
	}
	_ = k.sendShellReply(ctx, parent, "kernel_info_reply", reply)
}

func handleExecute(ctx context.Context, k *Kernel, parent Header, f Frame) {
	var req ExecuteRequest
	if err := decodeContent(f, &req); err != nil {
		return
	}
	count := k.nextExecutionCount()

	_ = k.publishIOPub(ctx, parent, "status", Status{ExecutionState: StateBusy})

	emit := func(msgType string, content any) {
		_ = k.publishIOPub(ctx, parent, msgType, content)
	}

	reply, err := k.executor.Execute(ctx, req, emit)
	if err != nil {
		_ = k.publishIOPub(ctx, parent, "error", ErrorContent{
			EName:  "ExecutionError",
			EValue: err.Error(),
		})
		reply = ExecuteReply{Status: "error", EName: "ExecutionError", EValue: err.Error()}
	}
	reply.ExecutionCount = count
	if reply.Status == "" {
		reply.Status = "ok"
	}

	_ = k.publishIOPub(ctx, parent, "status", Status{ExecutionState: StateIdle})

	_ = k.sendShellReply(ctx, parent, "execute_reply", reply)
}

func handleDebug(ctx context.Context, k *Kernel, parent Header, f Frame) {
	var req DebugRequest
	if err := decodeContent(f, &req); err != nil {
		return
	}
	reply := DebugReply{Seq: req.Seq, Success: true}
	_ = k.sendControlReply(ctx, parent, "debug_reply", reply)
}

func handleShutdown(ctx context.Context, k *Kernel, parent Header, f Frame) {
	var req ShutdownRequest
	if err := decodeContent(f, &req); err != nil {
		return
	}
	_ = k.sendControlReply(ctx, parent, "shutdown_reply", ShutdownReply{Restart: req.Restart})
	k.requestShutdown()
}
