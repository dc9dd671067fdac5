// Package store provides read-only access to the Z-A SQLite database.
//
// The store package opens the database with a read-only URI and enforces
// query-only at the session level as a second line of defense, so no
// statement issued through a Store can mutate the file. It exposes the
// two query shapes the sandbox binds into snippets (Query and Scalar)
// plus the detail lookups used by the tool layer.
//
// Usage:
//
//	s, err := store.OpenReadOnly("za.sqlite3")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//	rows, err := s.Query(ctx, "SELECT name FROM pokemons WHERE hp >= ?", 100)
package store
