// Package recon turns a stream of event arrays into intensity frames
// sampled at scheduled instants.
//
// Responsibilities: first-buffer bootstrap (stream anchor, accumulator
// geometry, decoder selection), routing every decoded event into the
// Accumulator, and cutting frames whenever an event crosses the next
// scheduled boundary. Key types: Reconstructor, Scheduler, Frame.
//
// The brightness estimator and the frame sinks are collaborators consumed
// through the Accumulator and FrameHandler interfaces; see
// internal/brightness and internal/framesink for implementations.
//
// A Reconstructor is not safe for concurrent use. Callers must serialise
// ProcessBuffer, and FrameHandler implementations must not call back into
// the Reconstructor that invoked them.
package recon
