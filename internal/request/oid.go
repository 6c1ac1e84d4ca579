package request

import (
	"strconv"
	"strings"
)

// Well-known mib-2 paths
const (
	Mib2           = "1.3.6.1.2.1"
	SystemMib      = Mib2 + ".1"
	InterfacesMib  = Mib2 + ".2"
	IPMib          = Mib2 + ".4"
	TCPMib         = Mib2 + ".6"
	UDPMib         = Mib2 + ".7"
	HostMib        = Mib2 + ".25"
	HrStorageMib   = HostMib + ".2"
	HrSWRunPerfMib = HostMib + ".5"

	SysDescr    = SystemMib + ".1.0"
	SysUpTime   = SystemMib + ".3.0"
	SysName     = SystemMib + ".5.0"
	IfNumber    = InterfacesMib + ".1.0"
	IfTable     = InterfacesMib + ".2"
	IfIndex     = IfTable + ".1.1"
	IfDescr     = IfTable + ".1.2"
	IfInOctets  = IfTable + ".1.10"
	IfOutOctets = IfTable + ".1.16"
)

// NormalizeOID trims whitespace and the leading dot gosnmp puts on names
func NormalizeOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}

// HasPrefix reports whether oid lies strictly under root, respecting
// sub-identifier boundaries (1.3.6.1.2.10 is not under 1.3.6.1.2.1).
func HasPrefix(oid, root string) bool {
	oid, root = NormalizeOID(oid), NormalizeOID(root)
	return len(oid) > len(root) && strings.HasPrefix(oid, root) && oid[len(root)] == '.'
}

// Suffix returns the part of oid below root, or "" if oid is not under root
func Suffix(oid, root string) string {
	if !HasPrefix(oid, root) {
		return ""
	}
	return NormalizeOID(oid)[len(NormalizeOID(root))+1:]
}

// Join appends a sub-identifier path to an OID
func Join(oid, suffix string) string {
	return NormalizeOID(oid) + "." + strings.TrimPrefix(suffix, ".")
}

// TrimInstance removes a trailing ".0" scalar instance suffix
func TrimInstance(oid string) (string, bool) {
	oid = NormalizeOID(oid)
	if strings.HasSuffix(oid, ".0") {
		return oid[:len(oid)-2], true
	}
	return oid, false
}

// CompareOID orders OIDs arc by arc, numerically, the way an agent walks
// them. Non-numeric arcs fall back to string comparison.
func CompareOID(a, b string) int {
	as := strings.Split(NormalizeOID(a), ".")
	bs := strings.Split(NormalizeOID(b), ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		x, errX := strconv.ParseUint(as[i], 10, 64)
		y, errY := strconv.ParseUint(bs[i], 10, 64)
		if errX != nil || errY != nil {
			return strings.Compare(as[i], bs[i])
		}
		if x < y {
			return -1
		}
		return 1
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
