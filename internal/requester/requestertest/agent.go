// Package requestertest provides an in-memory agent and an asynchronous
// Session for exercising requesters without a network.
package requestertest

import (
	"sort"
	"sync"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/request"
)

// Agent is an ordered in-memory MIB answering GET, GETNEXT and GETBULK
type Agent struct {
	mu    sync.RWMutex
	mib   map[string]gosnmp.SnmpPDU
	order []string
}

func NewAgent() *Agent {
	return &Agent{mib: make(map[string]gosnmp.SnmpPDU)}
}

// Set stores a value under oid
func (a *Agent) Set(oid string, typ gosnmp.Asn1BER, value any) *Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	oid = request.NormalizeOID(oid)
	if _, ok := a.mib[oid]; !ok {
		a.order = append(a.order, oid)
		sort.Slice(a.order, func(i, j int) bool { return request.CompareOID(a.order[i], a.order[j]) < 0 })
	}
	a.mib[oid] = gosnmp.SnmpPDU{Name: "." + oid, Type: typ, Value: value}
	return a
}

// SetString stores an OctetString value
func (a *Agent) SetString(oid, value string) *Agent {
	return a.Set(oid, gosnmp.OctetString, []byte(value))
}

// SetInt stores an Integer value
func (a *Agent) SetInt(oid string, value int) *Agent {
	return a.Set(oid, gosnmp.Integer, value)
}

// Delete removes oid from the MIB
func (a *Agent) Delete(oid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	oid = request.NormalizeOID(oid)
	delete(a.mib, oid)
	for i, o := range a.order {
		if o == oid {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Get returns the exact instance or a noSuchObject varbind
func (a *Agent) Get(oid string) gosnmp.SnmpPDU {
	a.mu.RLock()
	defer a.mu.RUnlock()
	oid = request.NormalizeOID(oid)
	if pdu, ok := a.mib[oid]; ok {
		return pdu
	}
	return gosnmp.SnmpPDU{Name: "." + oid, Type: gosnmp.NoSuchObject}
}

// GetNext returns the first instance strictly after oid or endOfMibView
func (a *Agent) GetNext(oid string) gosnmp.SnmpPDU {
	a.mu.RLock()
	defer a.mu.RUnlock()
	oid = request.NormalizeOID(oid)
	i := sort.Search(len(a.order), func(i int) bool { return request.CompareOID(a.order[i], oid) > 0 })
	if i == len(a.order) {
		return gosnmp.SnmpPDU{Name: "." + oid, Type: gosnmp.EndOfMibView}
	}
	return a.mib[a.order[i]]
}

// GetBulk answers like an agent: the first nonRepeaters oids get one
// GETNEXT each, the rest are repeated maxRepetitions times, interleaved.
func (a *Agent) GetBulk(oids []string, nonRepeaters uint8, maxRepetitions uint32) []gosnmp.SnmpPDU {
	n := min(int(nonRepeaters), len(oids))
	var out []gosnmp.SnmpPDU
	for _, oid := range oids[:n] {
		out = append(out, a.GetNext(oid))
	}

	cursors := append([]string(nil), oids[n:]...)
	for rep := uint32(0); rep < maxRepetitions; rep++ {
		for i, oid := range cursors {
			pdu := a.GetNext(oid)
			out = append(out, pdu)
			cursors[i] = request.NormalizeOID(pdu.Name)
		}
	}
	return out
}
