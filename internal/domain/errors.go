// Package domain contains the core entities of the VSD monitor.
package domain

import "errors"

// Fleet configuration errors. All of these are fatal at startup and
// are never produced mid-run.
var (
	ErrNoUnitsDefined    = errors.New("at least one unit must be defined")
	ErrInvalidUnitID     = errors.New("invalid unit ID")
	ErrUnitNameRequired  = errors.New("unit name is required")
	ErrInvalidUnitName   = errors.New("unit name is not a valid identifier")
	ErrDuplicateUnit     = errors.New("duplicate unit")
	ErrNoBlocksDefined   = errors.New("at least one register block must be defined")
	ErrNoMetricsDefined  = errors.New("at least one metric must be defined")
	ErrBlockLenMismatch  = errors.New("register definitions do not match block count")
	ErrInvalidDivisor    = errors.New("scaling divisor must be positive")
	ErrInvalidRange      = errors.New("valid range min must not exceed max")
	ErrUnknownBlock      = errors.New("metric references unknown register block")
	ErrOffsetOutOfBlock  = errors.New("metric offset outside register block")
	ErrInvalidTableName  = errors.New("table name is not a valid identifier")
	ErrDuplicateTable    = errors.New("duplicate table name")
	ErrInvalidStatusBit  = errors.New("status bit offset out of range")
	ErrInvalidBlockCount = errors.New("register block count out of range")
)

// Connection errors.
var (
	ErrConnectionFailed  = errors.New("connection failed")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrReadFailed        = errors.New("read operation failed")
	ErrReconnectPending  = errors.New("reconnect suppressed by circuit breaker")
)

// Modbus protocol errors, one per exception code the remote unit can
// return. These are "protocol" failures in the error taxonomy: the
// transport delivered a reply, the device refused the request.
var (
	ErrModbusIllegalFunction   = errors.New("modbus: illegal function")
	ErrModbusIllegalAddress    = errors.New("modbus: illegal data address")
	ErrModbusIllegalValue      = errors.New("modbus: illegal data value")
	ErrModbusDeviceFailure     = errors.New("modbus: slave device failure")
	ErrModbusAcknowledge       = errors.New("modbus: acknowledge - long operation in progress")
	ErrModbusBusy              = errors.New("modbus: slave device busy")
	ErrModbusNegativeAck       = errors.New("modbus: negative acknowledge")
	ErrModbusMemoryParityError = errors.New("modbus: memory parity error")
	ErrModbusGatewayPath       = errors.New("modbus: gateway path unavailable")
	ErrModbusGatewayTarget     = errors.New("modbus: gateway target device failed to respond")
)

// Persistence errors.
var (
	ErrSchemaFailed    = errors.New("schema creation failed")
	ErrAppendFailed    = errors.New("row append failed")
	ErrValueCountWrong = errors.New("value count does not match unit count")
)

// ModbusExceptionToError converts a Modbus exception code to a domain error.
func ModbusExceptionToError(code byte) error {
	switch code {
	case 0x01:
		return ErrModbusIllegalFunction
	case 0x02:
		return ErrModbusIllegalAddress
	case 0x03:
		return ErrModbusIllegalValue
	case 0x04:
		return ErrModbusDeviceFailure
	case 0x05:
		return ErrModbusAcknowledge
	case 0x06:
		return ErrModbusBusy
	case 0x07:
		return ErrModbusNegativeAck
	case 0x08:
		return ErrModbusMemoryParityError
	case 0x0A:
		return ErrModbusGatewayPath
	case 0x0B:
		return ErrModbusGatewayTarget
	default:
		return ErrReadFailed
	}
}
