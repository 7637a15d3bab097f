package domain

// Email template identifiers understood by the templated-email provider.
const (
	TemplateOTP                = "otp_offers"
	TemplatePasswordReset      = "password_reset_28"
	TemplateNewInterest        = "new_interest"
	TemplateAcceptedInterest   = "accepted_interest"
	TemplatePurchaseInterest   = "purchase_interest"
	TemplateAstroInsights      = "astro_insights"
	TemplateAccountHidden      = "account_hidden"
	TemplateAccountDeletion    = "account_deletion_3"
	TemplateBrokerRegistration = "broker_registration"
	TemplateBrokerConfirmation = "broker_confirmation"
	TemplateSupportReport      = "user_register_2"
)
