// Package engine is the composition root. It turns a session file into live
// tool provider connections, a merged tool registry, a model completer and an
// agent, runs the agent on the session's prompt, and tears everything down.
//
//	eng := engine.New(engine.WithLogger(logger))
//	answer, err := eng.Invoke(ctx, "session.yaml")
//
// Connection failures are logged and the session continues with the
// providers that came up. Configuration errors abort before any connection
// is attempted.
package engine
