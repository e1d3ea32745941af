package netutil

import (
	"fmt"
	"net"
	"strings"
)

// isExternalInterface uses a name-prefix denylist to weed out known
// container/bridge interfaces.
func isExternalInterface(name string) bool {
	switch {
	case strings.HasPrefix(name, "docker"):
		return false
	case strings.HasPrefix(name, "lxdbr"):
		return false
	case strings.HasPrefix(name, "br-"):
		return false
	default:
		return true
	}
}

func isIPv4(addr string) bool {
	return strings.Count(addr, ":") < 2
}

// ListExternalIPs returns the IP addresses bound to externally-reachable
// interfaces (i.e. not loopback or known container bridges).
func ListExternalIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerating network interfaces: %w", err)
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if !isExternalInterface(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, fmt.Errorf("enumerating addresses on %s: %w", iface.Name, err)
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			default:
				continue
			}
			if ip.IsGlobalUnicast() {
				ips = append(ips, ip)
			}
		}
	}
	return ips, nil
}

// FindExternalAddr picks a reachable external address for this host,
// preferring IPv4.
func FindExternalAddr() (string, error) {
	ips, err := ListExternalIPs()
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if isIPv4(ip.String()) {
			return ip.String(), nil
		}
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no external IP addresses found")
	}
	return ips[0].String(), nil
}
