package eventlog

import "context"

// Sink persists a batch of rows. A Sink must either persist the whole batch
// or return an error. The Flusher resends a failed batch to that sink only,
// so a sink that fails part-way through a batch (the CSV writer after a
// short write) can receive some rows twice. The sqlite Store commits each
// batch in one transaction and never does.
type Sink interface {
	WriteRows(ctx context.Context, rows []Row) error
}
