package features

// Merge combines URL, host and DOM records in that order; later writers win.
// Every key of a DOM record is rewritten with DOMPrefix so document signals
// never collide with URL-derived ones.
func Merge(urlFeats, hostFeats Record, dom ...Record) Record {
	size := len(urlFeats) + len(hostFeats)
	for _, d := range dom {
		size += len(d)
	}

	out := make(Record, size)
	for k, v := range urlFeats {
		out[k] = v
	}
	for k, v := range hostFeats {
		out[k] = v
	}
	for _, d := range dom {
		for k, v := range d {
			out[DOMKey(k)] = v
		}
	}
	return out
}
