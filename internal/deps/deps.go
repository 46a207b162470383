package deps

// Status reports whether an external tool scenecraft shells out to could be
// resolved, and to which command.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Missing returns the required tools that could not be resolved. Optional
// tools never count as missing.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if s.Available || s.Optional {
			continue
		}
		out = append(out, s)
	}
	return out
}
