// Package codec owns the event-array layer: the wire format that carries
// batches of camera events, and the per-encoding decoders that turn the
// packed event bytes back into individual callbacks.
//
// Responsibilities: EventArray (de)serialisation, the Processor callback
// contract, and the mono and evt3 encodings. Key types: EventArray,
// Decoder, Processor, Encoder.
//
// Dependency rule: codec depends on nothing else in this module. The
// reconstruction core (internal/recon) consumes it through NewDecoder.
package codec
