package preferences

// Preferences are the user's notification settings. MedicationReminders
// off silences fired reminders; registrations are left in place.
type Preferences struct {
	MedicationReminders bool  `json:"medication_reminders"`
	SoundEnabled        bool  `json:"sound_enabled"`
	VibrationEnabled    bool  `json:"vibration_enabled"`
	UpdatedAt           int64 `json:"updated_at,omitempty"`
}

// Defaults has every notification feature on.
func Defaults() Preferences {
	return Preferences{
		MedicationReminders: true,
		SoundEnabled:        true,
		VibrationEnabled:    true,
	}
}
