package device

import (
	"go.uber.org/multierr"

	"go.viam.com/rgbdgrab/logging"
)

type resource struct {
	name    string
	release func() error
}

// resourceStack owns the releases of everything a device acquired, in acquisition order.
type resourceStack struct {
	items []resource
}

func (s *resourceStack) push(name string, release func() error) {
	s.items = append(s.items, resource{name: name, release: release})
}

func (s *resourceStack) len() int {
	return len(s.items)
}

// releaseAll pops and runs every release, last acquired first. Each release runs once even if
// releaseAll is called again.
func (s *resourceStack) releaseAll(logger logging.Logger) error {
	var err error
	for len(s.items) > 0 {
		r := s.items[len(s.items)-1]
		s.items = s.items[:len(s.items)-1]
		if rerr := r.release(); rerr != nil {
			logger.Warnw("failed to release", "resource", r.name, "error", rerr)
			err = multierr.Combine(err, rerr)
			continue
		}
		logger.Debugw("released", "resource", r.name)
	}
	return err
}
