package models

// UserStatus is the per-user product status snapshot returned by the status
// endpoint. It drives the dashboard's landing view.
type UserStatus struct {
	User     UserInfo     `json:"user"`
	Products Products     `json:"products"`
	Entities EntitiesInfo `json:"entities"`
}

// UserInfo identifies the signed-in user.
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Products groups the per-product status blocks.
type Products struct {
	GoodHang  GoodHangProduct  `json:"goodhang"`
	FounderOS FounderOSProduct `json:"founder_os"`
	VoiceOS   VoiceOSProduct   `json:"voice_os"`
}

// GoodHangProduct reports assessment progress for the GoodHang product.
type GoodHangProduct struct {
	Enabled    bool                `json:"enabled"`
	Assessment *AssessmentStatus   `json:"assessment,omitempty"`
}

// AssessmentStatus summarizes a completed or in-flight assessment.
type AssessmentStatus struct {
	Completed    bool               `json:"completed"`
	Status       string             `json:"status"`
	Tier         string             `json:"tier,omitempty"`
	Archetype    string             `json:"archetype,omitempty"`
	OverallScore *float64           `json:"overall_score,omitempty"`
	Dimensions   map[string]float64 `json:"dimensions,omitempty"`
	Badges       []string           `json:"badges,omitempty"`
	SessionID    string             `json:"session_id,omitempty"`
}

// FounderOSProduct reports sculptor and identity-profile progress.
type FounderOSProduct struct {
	Enabled         bool             `json:"enabled"`
	Sculptor        *SculptorStatus  `json:"sculptor,omitempty"`
	IdentityProfile *IdentityProfile `json:"identity_profile,omitempty"`
}

// SculptorStatus reports sculptor-session completion.
type SculptorStatus struct {
	Completed           bool   `json:"completed"`
	Status              string `json:"status"`
	TranscriptAvailable bool   `json:"transcript_available"`
}

// IdentityProfile reports identity-profile completion.
type IdentityProfile struct {
	Completed   bool     `json:"completed"`
	AnnualTheme string   `json:"annual_theme,omitempty"`
	CoreValues  []string `json:"core_values,omitempty"`
}

// VoiceOSProduct reports how many context files the user has uploaded.
type VoiceOSProduct struct {
	Enabled           bool `json:"enabled"`
	ContextFilesCount int  `json:"context_files_count"`
}

// EntitiesInfo reports how many CRM entities the user has.
type EntitiesInfo struct {
	Count     int  `json:"count"`
	HasEntity bool `json:"has_entity"`
}
