package config

import "time"

// TCPConnectTimeoutMillis is the default deadline hook.Connect applies to
// a hooked socket when the caller doesn't specify one, mirroring sylar's
// g_tcp_connect_timeout ConfigVar (default 5000ms).
var TCPConnectTimeoutMillis = NewVar("tcp.connect.timeout", 5000)

// TCPConnectRetries is the number of additional addresses hook.DialTimeout
// will try (beyond the first) before giving up on a multi-address host.
// This key has no original_source equivalent — it is the feature
// supplement documented in SPEC_FULL.md §6, grounded on the teacher's
// dialSingle/Dial address-racing behavior in poller_epoll.go.
var TCPConnectRetries = NewVar("tcp.connect.retries", 0)

// TCPConnectTimeout returns the current tcp.connect.timeout value as a
// time.Duration, the shape fdtable.Table and hook.Connect actually want.
func TCPConnectTimeout() time.Duration {
	return time.Duration(TCPConnectTimeoutMillis.Value()) * time.Millisecond
}
