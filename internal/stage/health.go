package stage

// Health reports whether a pipeline stage can currently accept work.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy marks a stage as ready to claim documents.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy marks a stage as unable to run, with an operator-facing detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
