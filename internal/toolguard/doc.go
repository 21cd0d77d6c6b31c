// Package toolguard screens teammate tool calls before and after they run.
//
// The session layer reports every tool invocation twice. [Guard.Before]
// runs first: it asks the teammate's throttle for admission, records the
// call with the heartbeat aggregator, and for file-modifying tools checks
// the ownership tracker. [Guard.After] reports the outcome back so the
// throttle can grow or shrink its budget and ownership is recorded for
// successful writes.
//
// # Usage
//
//	guard := toolguard.New(toolguard.DefaultConfig(),
//		toolguard.WithHeartbeat(agg),
//		toolguard.WithOwnership(tracker),
//		toolguard.WithBus(bus))
//
//	v := guard.Before(call)
//	if !v.Allowed {
//		return v.Reason // surfaced to the agent as feedback
//	}
//	// ... run the tool ...
//	guard.After(call, err == nil)
//
// Rejections are never errors. A rejected call carries a reason the agent
// can act on.
//
// # Thread Safety
//
// All methods on [Guard] are safe for concurrent use.
package toolguard
