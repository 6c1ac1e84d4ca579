package transport

import (
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Credentials carries the community for v1/v2c or the USM user for v3
type Credentials struct {
	Community     string
	SecurityName  string
	SecurityLevel string
	AuthProtocol  string
	AuthPassword  string
	PrivProtocol  string
	PrivPassword  string
	ContextName   string
}

// Config describes one agent endpoint
type Config struct {
	Host        string
	Port        uint16
	Version     gosnmp.SnmpVersion
	Timeout     time.Duration
	Retries     int
	Credentials Credentials
}

// ParseVersion maps the configuration spelling of a protocol version
func ParseVersion(v string) (gosnmp.SnmpVersion, error) {
	switch v {
	case "1", "v1":
		return gosnmp.Version1, nil
	case "2", "2c", "v2c":
		return gosnmp.Version2c, nil
	case "3", "v3":
		return gosnmp.Version3, nil
	}
	return 0, fmt.Errorf("unsupported snmp version %q", v)
}

// newGoSNMP builds the gosnmp client for cfg without connecting it
func newGoSNMP(cfg Config) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:  cfg.Host,
		Port:    cfg.Port,
		Version: cfg.Version,
		Timeout: cfg.Timeout,
		Retries: cfg.Retries,
	}
	if g.Port == 0 {
		g.Port = 161
	}

	switch cfg.Version {
	case gosnmp.Version1, gosnmp.Version2c:
		g.Community = cfg.Credentials.Community
	case gosnmp.Version3:
		params, flags, err := usm(cfg.Credentials)
		if err != nil {
			return nil, err
		}
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = flags
		g.SecurityParameters = params
		g.ContextName = cfg.Credentials.ContextName
	default:
		return nil, fmt.Errorf("unsupported snmp version %v", cfg.Version)
	}
	return g, nil
}

// usm translates v3 credentials into gosnmp security parameters
func usm(creds Credentials) (*gosnmp.UsmSecurityParameters, gosnmp.SnmpV3MsgFlags, error) {
	var level gosnmp.SnmpV3MsgFlags
	switch creds.SecurityLevel {
	case "noAuthNoPriv":
		level = gosnmp.NoAuthNoPriv
	case "authNoPriv":
		level = gosnmp.AuthNoPriv
	case "authPriv":
		level = gosnmp.AuthPriv
	default:
		return nil, 0, fmt.Errorf("invalid security level: %q", creds.SecurityLevel)
	}

	var authProto gosnmp.SnmpV3AuthProtocol
	switch creds.AuthProtocol {
	case "", "MD5":
		authProto = gosnmp.MD5
	case "SHA":
		authProto = gosnmp.SHA
	case "SHA224":
		authProto = gosnmp.SHA224
	case "SHA256":
		authProto = gosnmp.SHA256
	case "SHA384":
		authProto = gosnmp.SHA384
	case "SHA512":
		authProto = gosnmp.SHA512
	default:
		return nil, 0, fmt.Errorf("invalid auth protocol: %q", creds.AuthProtocol)
	}

	var privProto gosnmp.SnmpV3PrivProtocol
	switch creds.PrivProtocol {
	case "":
		privProto = gosnmp.NoPriv
	case "DES":
		privProto = gosnmp.DES
	case "AES":
		privProto = gosnmp.AES
	case "AES192":
		privProto = gosnmp.AES192
	case "AES256":
		privProto = gosnmp.AES256
	default:
		return nil, 0, fmt.Errorf("invalid privacy protocol: %q", creds.PrivProtocol)
	}

	params := &gosnmp.UsmSecurityParameters{UserName: creds.SecurityName}
	switch level {
	case gosnmp.AuthNoPriv:
		params.AuthenticationProtocol = authProto
		params.AuthenticationPassphrase = creds.AuthPassword
	case gosnmp.AuthPriv:
		if privProto == gosnmp.NoPriv {
			return nil, 0, fmt.Errorf("security level authPriv requires a privacy protocol")
		}
		params.AuthenticationProtocol = authProto
		params.AuthenticationPassphrase = creds.AuthPassword
		params.PrivacyProtocol = privProto
		params.PrivacyPassphrase = creds.PrivPassword
	}
	return params, level, nil
}
