// Package shutdown runs registered cleanup hooks when the process is
// asked to stop, by SIGINT/SIGTERM or by Trigger.
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.OnShutdown("peer node", node.Shutdown)
//	err := h.Wait(ctx)
package shutdown
