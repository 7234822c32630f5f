// Package heatmap owns the activity pressure engine.
//
// Responsibilities: mapping directional sensor events onto frame
// coordinates, holding recent activity points on a sliding window,
// rasterising them into a smoothed density field and colourised overlay,
// extracting ranked high-density zones, and compositing the overlay onto a
// background frame.
// Key types: Mapper, Ledger, Rasterizer, DensityField, Zone, Compositor.
//
// Dependency rule: heatmap may depend on sensor, but never on session,
// eventlog or any device package. No I/O is allowed in this package; every
// function is a deterministic transform of its inputs (the Mapper's
// randomness is injected).
package heatmap
