package discovery

import "errors"

var (
	errNotHello    = errors.New("discovery: datagram is not a Hello message")
	errNotResponse = errors.New("discovery: datagram is not a Welcome or Error message")
)
