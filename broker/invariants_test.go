package broker

// checkInvariants re-validates the structural invariants routing.go relies
// on. Go has no cfg(debug_assertions) equivalent, so it lives in a test
// file instead of asserting inline on every mutation. The routing tests
// drive the service through a RoutingHandle and do not call it.
func (s *RoutingService) checkInvariants() []string {
	var problems []string
	for id, entry := range s.servers {
		if len(entry.Attached) > 0 {
			if _, ok := entry.Attached[entry.Leader]; !ok {
				problems = append(problems, "server has a leader not present in attached")
			}
		}
		if got := s.projects[entry.Project]; got != id {
			problems = append(problems, "project index does not point back at its server")
		}
		for uri, state := range entry.DocOwners.byURI {
			if state.refcountSum() == 0 {
				problems = append(problems, "doc owner state left with zero total refcount: "+uri)
			}
		}
	}
	for key, req := range s.pending.s2c {
		if _, ok := s.servers[key.server]; !ok {
			problems = append(problems, "pending s2c request outlives its server")
		}
		_ = req
	}
	for key, req := range s.pending.c2s {
		if _, ok := s.servers[key.server]; !ok {
			problems = append(problems, "pending c2s request outlives its server")
		}
		_ = req
	}
	return problems
}
