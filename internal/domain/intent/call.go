package intent

// Call is one routed search: which intent to run and with what arguments.
// Args.Query is never empty.
type Call struct {
	ID     string
	Intent Intent
	Args   Args
}
