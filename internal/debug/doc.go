// Package debug drives a hardware debugging session against a microcontroller
// through the probe tool.
//
// A Controller owns at most one active session. Short commands (halt, step,
// register and memory access, breakpoint slots) run one at a time. "resume"
// runs as a long-lived monitor process whose output is watched for halt
// indications on stdout and disconnect indications on stderr. Commands that
// need the transport stop the monitor before they are sent.
//
// Callers learn about state changes by subscribing to events:
//
//	events, cancel := ctrl.Subscribe(16)
//	defer cancel()
//	for ev := range events {
//	    switch ev.Kind {
//	    case debug.EventBreakpointHit:
//	        regs, _ := ctrl.ReadRegisters(ctx)
//	        ...
//	    case debug.EventDeviceDisconnected:
//	        return
//	    }
//	}
package debug
