// Package supervisor coordinates one run of the speech-to-sign pipeline.
//
// The supervisor launches every stage of the stage set concurrently,
// wires them through shared append-only channels, and then blocks until
// an operator interrupt arrives or all stages have exited on their own.
// Shutdown terminates the tracked process groups in reverse launch order
// and then drives the finalizer exactly once; repeated interrupts and
// overlapping termination paths are absorbed by a single latch.
//
// Stage failure is deliberately soft: a worker that dies unsolicited is
// logged and recorded on the wiring graph, but the run continues. Its
// downstream channel simply stops growing, which the next consumer
// observes as an idle timeout.
package supervisor
