package converter

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
)

// TypeSNMP tags messages built from SNMP traps.
const TypeSNMP = "snmp"

// TrapOID is the snmpTrapOID.0 variable whose value identifies the trap.
const TrapOID = "1.3.6.1.6.3.1.1.4.1.0"

// HeaderCommunity carries the trap community string.
const HeaderCommunity = "community"

// SNMPVariable is one variable binding of a trap.
type SNMPVariable struct {
	OID   string `json:"oid"`
	Value any    `json:"value"`
}

// SNMPTrap is a received trap as handed over by a listener.
type SNMPTrap struct {
	Source    string         `json:"source"`
	Received  time.Time      `json:"received"`
	Community string         `json:"community"`
	Variables []SNMPVariable `json:"variables"`
}

// SNMPConverter converts traps. The body is
// [trap OID value, "oid=value;oid=value"] over the remaining bindings.
type SNMPConverter struct{}

// NewSNMPConverter returns an SNMPConverter.
func NewSNMPConverter() *SNMPConverter {
	return &SNMPConverter{}
}

// Type implements Converter.
func (c *SNMPConverter) Type() string { return TypeSNMP }

// CreateHeader implements Converter.
func (c *SNMPConverter) CreateHeader(raw any) (message.Header, error) {
	trap, err := asTrap(raw, "CreateHeader")
	if err != nil {
		return message.Header{}, err
	}

	header := message.Header{
		Source: trap.Source,
		Type:   TypeSNMP,
	}
	if !trap.Received.IsZero() {
		header.Timestamp = trap.Received.UnixMilli()
	}
	if trap.Community != "" {
		header.SetHeader(HeaderCommunity, trap.Community)
	}
	return header, nil
}

// CreateBody implements Converter. A trap without snmpTrapOID.0 fails.
func (c *SNMPConverter) CreateBody(raw any) (any, error) {
	trap, err := asTrap(raw, "CreateBody")
	if err != nil {
		return nil, err
	}

	var (
		trapID string
		found  bool
		pairs  []string
	)
	for _, v := range trap.Variables {
		oid := strings.TrimPrefix(v.OID, ".")
		value := stringify(v.Value)
		if oid == TrapOID {
			trapID, found = value, true
			continue
		}
		pairs = append(pairs, oid+"="+value)
	}
	if !found {
		return nil, errors.ConversionFailed(
			fmt.Errorf("%w: %s", errors.ErrFieldNotFound, TrapOID),
			"SNMPConverter", "CreateBody", "find trap OID")
	}
	return []string{trapID, strings.Join(pairs, ";")}, nil
}

// ToMap implements Converter.
func (c *SNMPConverter) ToMap(msg *message.StreamMessage) *message.OrderedMap {
	return DefaultToMap(msg)
}

func asTrap(raw any, method string) (*SNMPTrap, error) {
	switch t := raw.(type) {
	case *SNMPTrap:
		if t != nil {
			return t, nil
		}
	case SNMPTrap:
		return &t, nil
	}
	return nil, errors.ConversionFailed(
		fmt.Errorf("%w: expected SNMP trap, got %T", errors.ErrInvalidData, raw),
		"SNMPConverter", method, "read trap")
}
