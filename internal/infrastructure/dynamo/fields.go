package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID       = "user_id"
	fieldBrokerID     = "broker_id"
	fieldVersion      = "version"
	fieldUpdatedAt    = "updated_at"
	fieldInterests    = "interests"
	fieldTotal        = "total_no_of_interest"
	fieldTransactions = "transactions"
	fieldTxnRefs      = "txn_refs"
	fieldAstrology    = "astrology"
	fieldUID          = "uid"
	fieldStatus       = "status"
	fieldAIResponse   = "ai_response"
	fieldCompletedAt  = "completed_at"
	fieldIsHidden     = "is_hidden"
	fieldHideProfiles = "hide_profiles"
	fieldReferralID   = "referral_id"
	fieldIDProofs     = "id_proofs"
)
