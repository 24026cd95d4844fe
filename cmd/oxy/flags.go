package main

import "strings"

// stringList accumulates a repeatable flag's values, e.g. "-L a -L b" ->
// []string{"a", "b"}. flag.FlagSet has no built-in repeatable string flag,
// so this is the idiomatic stdlib way to get one (flag.Value is just an
// interface any type can satisfy).
type stringList []string

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// forwardSpec is one "-L"/"-R" argument, "listen:dest" where both sides are
// host:port. SOCKS ("-D") only carries a listen address.
type forwardSpec struct {
	listen string
	dest   string
}

// parseForwardSpec splits "listen_host:listen_port:dest_host:dest_port"
// into its listen and destination halves. Both halves must themselves be
// valid "host:port" pairs, so the split point is the middle one of three colons.
func parseForwardSpec(spec string) (forwardSpec, bool) {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 {
		return forwardSpec{}, false
	}
	return forwardSpec{
		listen: parts[0] + ":" + parts[1],
		dest:   parts[2] + ":" + parts[3],
	}, true
}
