package spnet

import (
	"fmt"
	"net/url"
)

// AddrFamily tags the variant carried by an Addr, per spec.md section 6.2.
type AddrFamily int

const (
	AddrUnspec AddrFamily = iota
	AddrInproc
	AddrIPC
	AddrIn4
	AddrIn6
	AddrAbstract
)

// Addr is a tagged-union socket address. Exactly the fields relevant
// to Family are meaningful; the zero value is AddrUnspec.
type Addr struct {
	Family AddrFamily

	// Inproc / IPC / Abstract
	Name string
	Path string

	// In4 / In6
	IP   []byte // 4 or 16 bytes, big-endian
	Port uint16
}

// String renders the address per spec.md section 6.2's encoding rules.
func (a Addr) String() string {
	switch a.Family {
	case AddrInproc:
		return a.Name
	case AddrIPC:
		return a.Path
	case AddrIn4:
		if len(a.IP) != 4 {
			return ""
		}
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
	case AddrIn6:
		if len(a.IP) != 16 {
			return ""
		}
		s := ""
		for i := 0; i < 16; i += 2 {
			if i > 0 {
				s += ":"
			}
			s += fmt.Sprintf("%02x%02x", a.IP[i], a.IP[i+1])
		}
		return fmt.Sprintf("[%s]:%d", s, a.Port)
	case AddrAbstract:
		return "abstract://" + url.QueryEscape(a.Name)
	default:
		return ""
	}
}
