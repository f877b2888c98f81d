package postgres

import (
	"context"
	"testing"
	"time"

	"lnurl-atm-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	op := uuid.New()
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		OperatorID:   &op,
		Action:       domain.AuditActionDeviceRotateKey,
		ResourceType: "device",
		ResourceID:   uuid.NewString(),
		Details:      `{"api_key_id":"5619b5e98f5a3c0b"}`,
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.OperatorID, "DEVICE_ROTATE_KEY", "device",
			entry.ResourceID, entry.Details, entry.IPAddress, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, NewAuditRepo(mock).Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}
