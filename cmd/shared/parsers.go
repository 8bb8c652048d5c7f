package shared

import (
	"fmt"
	"regexp"
	"strconv"

	"dominicbreuker/msgsock/pkg/config"
)

var transportRe = regexp.MustCompile(`^(?:(tcp|ws|udp)://)?(\[[^\]]*\]|[^:\[\]]*):(\d+)$`)

// ParseTransport parses a transport string in the format
// "[protocol://]host:port" where protocol is one of tcp, ws, or udp and
// defaults to tcp. The host can be empty or "*" to bind to all interfaces,
// IPv6 hosts are written in brackets. Port 0 is accepted so servers can
// bind an ephemeral port.
func ParseTransport(s string) (proto config.Protocol, host string, port int, err error) {
	matches := transportRe.FindStringSubmatch(s)
	if len(matches) != 4 {
		err = parsingError(s)
		return
	}

	proto, err = config.ParseProtocol(matches[1])
	if err != nil {
		err = parsingError(s)
		return
	}

	host = matches[2]
	if host == "*" { // also counts as all interfaces
		host = ""
	}
	if len(host) >= 2 && host[0] == '[' {
		host = host[1 : len(host)-1]
	}

	port, err = strconv.Atoi(matches[3])
	if err != nil || port < 0 || port > 65535 {
		err = parsingError(s)
		return
	}

	return
}

func parsingError(s string) error {
	return fmt.Errorf("parsing %s: format should be '[protocol://]host:port', where protocol = tcp|ws|udp", s)
}
