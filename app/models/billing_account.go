package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// BillingAccount links a local user to a payment-provider customer. The
// unique (user_id, provider) index guarantees a single customer per user and
// provider even under concurrent checkout attempts.
type BillingAccount struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index:ux_billing_accounts_user_provider,unique" json:"user_id"`
	Provider          string    `gorm:"type:varchar(20);not null;index:ux_billing_accounts_user_provider,unique;index:ux_billing_accounts_provider_account,unique,priority:1" json:"provider"`
	ProviderAccountID string    `gorm:"type:varchar(191);not null;index:ux_billing_accounts_provider_account,unique,priority:2" json:"provider_account_id"`
	Email             string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
