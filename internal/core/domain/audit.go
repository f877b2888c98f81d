package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionDeviceCreate    AuditAction = "DEVICE_CREATE"
	AuditActionDeviceUpdate    AuditAction = "DEVICE_UPDATE"
	AuditActionDeviceDelete    AuditAction = "DEVICE_DELETE"
	AuditActionDeviceRotateKey AuditAction = "DEVICE_ROTATE_KEY"
	AuditActionWalletCreate    AuditAction = "WALLET_CREATE"
	AuditActionWalletTopup     AuditAction = "WALLET_TOPUP"
)

// AuditLog records a single audited operator action.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	OperatorID   *uuid.UUID  `json:"operator_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
