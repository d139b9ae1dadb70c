package models

import "time"

// BillingPlanMapping maps provider price IDs to internal entitlement plans.
// An explicit table instead of a hardcoded price comparison: a new paid price
// that is missing here resolves to 'free', which the billing service logs as
// a warning so a forgotten mapping cannot silently downgrade paying users
// unnoticed.
type BillingPlanMapping struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_billing_plan_mappings_ref,unique,priority:1;index" json:"provider"`
	ProviderPlanRef string    `gorm:"type:varchar(191);not null;index:ux_billing_plan_mappings_ref,unique,priority:2" json:"provider_plan_ref"`
	InternalPlan    string    `gorm:"type:varchar(50);not null;default:'free';index" json:"internal_plan"`
	BillingInterval string    `gorm:"type:varchar(16);not null;default:'unknown';index:ux_billing_plan_mappings_ref,unique,priority:3" json:"billing_interval"`
	IsActive        bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
