package models

// Subscription plans, in increasing order of sustained rate ceiling.
const (
	PlanFree         = "free"
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)
