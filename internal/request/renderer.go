package request

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"
)

// Kind classifies a rendered value for downstream consumers
type Kind int

const (
	KindUnknown Kind = iota
	KindInteger
	KindGauge
	KindCounter
	KindCounter64
	KindTimeTicks
	KindFloat
	KindString
	KindOID
	KindIPAddress
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindInteger:   "integer",
	KindGauge:     "gauge",
	KindCounter:   "counter",
	KindCounter64: "counter64",
	KindTimeTicks: "timeticks",
	KindFloat:     "float",
	KindString:    "string",
	KindOID:       "oid",
	KindIPAddress: "ipaddress",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Numeric reports whether values of this kind carry a number
func (k Kind) Numeric() bool {
	switch k {
	case KindInteger, KindGauge, KindCounter, KindCounter64, KindTimeTicks, KindFloat:
		return true
	}
	return false
}

var (
	// ErrNoSuchValue is returned when the agent answered with an exception
	// varbind (noSuchObject, noSuchInstance, endOfMibView) or NULL.
	ErrNoSuchValue = errors.New("agent returned no value")
	// ErrUnsupportedType is returned for ASN.1 types a renderer cannot decode
	ErrUnsupportedType = errors.New("unsupported value type")
)

// Renderer converts a raw varbind into a typed value and its kind
type Renderer func(pdu gosnmp.SnmpPDU) (any, Kind, error)

// DefaultRenderer picks the kind from the varbind's ASN.1 type
func DefaultRenderer(pdu gosnmp.SnmpPDU) (any, Kind, error) {
	switch pdu.Type {
	case gosnmp.Integer:
		return gosnmp.ToBigInt(pdu.Value).Int64(), KindInteger, nil
	case gosnmp.Counter32:
		return gosnmp.ToBigInt(pdu.Value).Uint64(), KindCounter, nil
	case gosnmp.Counter64:
		return gosnmp.ToBigInt(pdu.Value).Uint64(), KindCounter64, nil
	case gosnmp.Gauge32, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(pdu.Value).Uint64(), KindGauge, nil
	case gosnmp.TimeTicks:
		return gosnmp.ToBigInt(pdu.Value).Uint64(), KindTimeTicks, nil
	case gosnmp.OpaqueFloat:
		f, ok := pdu.Value.(float32)
		if !ok {
			return nil, KindUnknown, fmt.Errorf("%w: opaque float %T", ErrUnsupportedType, pdu.Value)
		}
		return float64(f), KindFloat, nil
	case gosnmp.OpaqueDouble:
		f, ok := pdu.Value.(float64)
		if !ok {
			return nil, KindUnknown, fmt.Errorf("%w: opaque double %T", ErrUnsupportedType, pdu.Value)
		}
		return f, KindFloat, nil
	case gosnmp.OctetString:
		return octetString(pdu.Value), KindString, nil
	case gosnmp.ObjectIdentifier:
		return NormalizeOID(fmt.Sprintf("%v", pdu.Value)), KindOID, nil
	case gosnmp.IPAddress:
		return fmt.Sprintf("%v", pdu.Value), KindIPAddress, nil
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return nil, KindUnknown, fmt.Errorf("%w: %s", ErrNoSuchValue, pdu.Type)
	default:
		return nil, KindUnknown, fmt.Errorf("%w: %s", ErrUnsupportedType, pdu.Type)
	}
}

// StringRenderer renders any decodable value as a string
func StringRenderer(pdu gosnmp.SnmpPDU) (any, Kind, error) {
	value, _, err := DefaultRenderer(pdu)
	if err != nil {
		return nil, KindUnknown, err
	}
	return FormatValue(value), KindString, nil
}

// GaugeRenderer forces a numeric varbind to be reported as a gauge
func GaugeRenderer(pdu gosnmp.SnmpPDU) (any, Kind, error) {
	n, err := numeric(pdu)
	if err != nil {
		return nil, KindUnknown, err
	}
	return n, KindGauge, nil
}

// CounterRenderer forces a numeric varbind to be reported as a counter
func CounterRenderer(pdu gosnmp.SnmpPDU) (any, Kind, error) {
	n, err := numeric(pdu)
	if err != nil {
		return nil, KindUnknown, err
	}
	return n, KindCounter, nil
}

// RendererByName resolves the renderer names accepted in configuration
func RendererByName(name string) (Renderer, error) {
	switch name {
	case "", "default":
		return DefaultRenderer, nil
	case "string":
		return StringRenderer, nil
	case "gauge":
		return GaugeRenderer, nil
	case "counter":
		return CounterRenderer, nil
	}
	return nil, fmt.Errorf("unknown renderer %q", name)
}

// FormatValue renders a typed value as a string
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case *big.Int:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Float converts a numeric value to float64
func Float(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func numeric(pdu gosnmp.SnmpPDU) (any, error) {
	switch pdu.Type {
	case gosnmp.Integer:
		return gosnmp.ToBigInt(pdu.Value).Int64(), nil
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.Uinteger32, gosnmp.TimeTicks:
		return gosnmp.ToBigInt(pdu.Value).Uint64(), nil
	case gosnmp.OctetString:
		// Some agents report numbers as display strings
		s := octetString(pdu.Value)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("%w: %q is not numeric", ErrUnsupportedType, s)
	}
	value, kind, err := DefaultRenderer(pdu)
	if err != nil {
		return nil, err
	}
	if kind == KindFloat {
		return value, nil
	}
	return nil, fmt.Errorf("%w: %s is not numeric", ErrUnsupportedType, pdu.Type)
}

func octetString(value any) string {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Sprintf("%v", v)
	}
	if printable(b) {
		return string(b)
	}
	return "0x" + hex.EncodeToString(b)
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
