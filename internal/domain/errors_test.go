package domain_test

import (
	"errors"
	"testing"

	"github.com/utilitysc/vsd-monitor/internal/domain"
)

func TestModbusExceptionToError(t *testing.T) {
	tests := []struct {
		code byte
		want error
	}{
		{0x01, domain.ErrModbusIllegalFunction},
		{0x02, domain.ErrModbusIllegalAddress},
		{0x03, domain.ErrModbusIllegalValue},
		{0x04, domain.ErrModbusDeviceFailure},
		{0x0B, domain.ErrModbusGatewayTarget},
		{0xFF, domain.ErrReadFailed},
	}

	for _, tt := range tests {
		got := domain.ModbusExceptionToError(tt.code)
		if !errors.Is(got, tt.want) {
			t.Errorf("code 0x%02X: got %v, want %v", tt.code, got, tt.want)
		}
	}
}
