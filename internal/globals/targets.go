package globals

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/plan"
	"github.com/nmslite/snmppoller/internal/request"
	"github.com/nmslite/snmppoller/internal/table"
	"github.com/nmslite/snmppoller/internal/transport"
)

// TargetConfig describes one agent and what to poll on it
type TargetConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Host    string `yaml:"host" validate:"required"`
	Port    int    `yaml:"port,omitempty" validate:"min=0,max=65535"`
	Version string `yaml:"version" validate:"required,oneof=1 2 2c 3 v1 v2c v3"`

	// v1 / v2c
	Community string `yaml:"community,omitempty"`

	// v3 USM
	SecurityName  string `yaml:"security_name,omitempty"`
	SecurityLevel string `yaml:"security_level,omitempty" validate:"omitempty,oneof=noAuthNoPriv authNoPriv authPriv"`
	AuthProtocol  string `yaml:"auth_protocol,omitempty" validate:"omitempty,oneof=MD5 SHA SHA224 SHA256 SHA384 SHA512"`
	AuthPassword  string `yaml:"auth_password,omitempty"`
	PrivProtocol  string `yaml:"priv_protocol,omitempty" validate:"omitempty,oneof=DES AES AES192 AES256"`
	PrivPassword  string `yaml:"priv_password,omitempty"`
	ContextName   string `yaml:"context_name,omitempty"`

	PingOID                string      `yaml:"ping_oid,omitempty"`
	PollingIntervalSeconds int         `yaml:"polling_interval_seconds,omitempty" validate:"min=0"`
	OIDs                   []OIDConfig `yaml:"oids" validate:"required,min=1,dive"`
}

// OIDConfig is one OID declaration of a target
type OIDConfig struct {
	Kind     string `yaml:"kind" validate:"required,oneof=scalar simple_table complex_table"`
	OID      string `yaml:"oid" validate:"required"`
	Renderer string `yaml:"renderer,omitempty" validate:"omitempty,oneof=default string gauge counter"`
	// Filter names the row expansion of a table: count or index_list for
	// simple tables, index or value for complex ones
	Filter  string         `yaml:"filter,omitempty"`
	Columns []ColumnConfig `yaml:"columns,omitempty" validate:"dive"`
}

// ColumnConfig is one column template of a table declaration
type ColumnConfig struct {
	OID      string `yaml:"oid" validate:"required"`
	Renderer string `yaml:"renderer,omitempty" validate:"omitempty,oneof=default string gauge counter"`
}

func (t *TargetConfig) validate() error {
	version, err := transport.ParseVersion(t.Version)
	if err != nil {
		return err
	}
	switch version {
	case gosnmp.Version1, gosnmp.Version2c:
		if t.Community == "" {
			return fmt.Errorf("community is required for snmp %s", t.Version)
		}
	case gosnmp.Version3:
		if t.SecurityName == "" || t.SecurityLevel == "" {
			return fmt.Errorf("security_name and security_level are required for snmp v3")
		}
	}
	// a throwaway plan catches duplicate tables and malformed declarations
	_, err = t.BuildPlan(SNMPConfig{}, slog.New(slog.DiscardHandler))
	return err
}

// PlanVersion maps the protocol version onto the fetch strategy family:
// v1 polls sequentially, v2c and v3 use bulk exchanges
func (t *TargetConfig) PlanVersion() (plan.Version, error) {
	version, err := transport.ParseVersion(t.Version)
	if err != nil {
		return 0, err
	}
	if version == gosnmp.Version1 {
		return plan.V1, nil
	}
	return plan.V2, nil
}

// PollingInterval returns the target's interval, or fallbackSeconds when
// it sets none
func (t *TargetConfig) PollingInterval(fallbackSeconds int) time.Duration {
	if t.PollingIntervalSeconds > 0 {
		return time.Duration(t.PollingIntervalSeconds) * time.Second
	}
	return time.Duration(fallbackSeconds) * time.Second
}

// TransportConfig merges the target with the shared protocol defaults
func (t *TargetConfig) TransportConfig(defaults SNMPConfig) (transport.Config, error) {
	version, err := transport.ParseVersion(t.Version)
	if err != nil {
		return transport.Config{}, err
	}
	port := t.Port
	if port == 0 {
		port = defaults.Port
	}
	return transport.Config{
		Host:    t.Host,
		Port:    uint16(port),
		Version: version,
		Timeout: defaults.Timeout(),
		Retries: defaults.Retries,
		Credentials: transport.Credentials{
			Community:     t.Community,
			SecurityName:  t.SecurityName,
			SecurityLevel: t.SecurityLevel,
			AuthProtocol:  t.AuthProtocol,
			AuthPassword:  t.AuthPassword,
			PrivProtocol:  t.PrivProtocol,
			PrivPassword:  t.PrivPassword,
			ContextName:   t.ContextName,
		},
	}, nil
}

// Declarations builds fresh plan declarations. Every call returns new
// requests, so each plan owns its own.
func (t *TargetConfig) Declarations() ([]plan.Declaration, error) {
	decls := make([]plan.Declaration, 0, len(t.OIDs))
	for i, o := range t.OIDs {
		d, err := o.declaration()
		if err != nil {
			return nil, fmt.Errorf("oids[%d] %s: %w", i, o.OID, err)
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// BuildPlan classifies the target's declarations
func (t *TargetConfig) BuildPlan(snmp SNMPConfig, logger *slog.Logger) (*plan.Plan, error) {
	version, err := t.PlanVersion()
	if err != nil {
		return nil, err
	}
	decls, err := t.Declarations()
	if err != nil {
		return nil, err
	}
	return plan.Classify(version, decls,
		plan.WithLogger(logger),
		plan.WithMaxWalkRows(snmp.MaxWalkRows),
		plan.WithBulkRepetitions(snmp.MaxRepetitions),
	)
}

func (o OIDConfig) declaration() (plan.Declaration, error) {
	switch o.Kind {
	case "scalar":
		if len(o.Columns) > 0 {
			return plan.Declaration{}, fmt.Errorf("scalar declarations take no columns")
		}
		renderer, err := request.RendererByName(o.Renderer)
		if err != nil {
			return plan.Declaration{}, err
		}
		return plan.Scalar(o.OID, renderer), nil

	case "simple_table":
		columns, err := o.columns()
		if err != nil {
			return plan.Declaration{}, err
		}
		filter, err := table.SimpleFilterByName(o.Filter)
		if err != nil {
			return plan.Declaration{}, err
		}
		t, err := table.NewSimple(o.OID, columns, filter)
		if err != nil {
			return plan.Declaration{}, err
		}
		return plan.SimpleTable(t), nil

	case "complex_table":
		columns, err := o.columns()
		if err != nil {
			return plan.Declaration{}, err
		}
		filter, err := table.ComplexFilterByName(o.Filter)
		if err != nil {
			return plan.Declaration{}, err
		}
		t, err := table.NewComplex(o.OID, columns, filter)
		if err != nil {
			return plan.Declaration{}, err
		}
		return plan.ComplexTable(t), nil
	}
	return plan.Declaration{}, fmt.Errorf("unknown kind %q", o.Kind)
}

func (o OIDConfig) columns() ([]*request.ValueRequest, error) {
	out := make([]*request.ValueRequest, 0, len(o.Columns))
	for _, c := range o.Columns {
		renderer, err := request.RendererByName(c.Renderer)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.OID, err)
		}
		out = append(out, request.New(c.OID, renderer))
	}
	return out, nil
}
