package models

// TwinPatch desired properties received from the twin; nil fields are unchanged
type TwinPatch struct {
	WakeTime         *ClockTime
	WindowMinutes    *int
	AlarmEnabled     *bool
	CloudEnabled     *bool
	MonitoringActive *bool

	// Initial the full desired document delivered on (re)connect
	Initial bool
}

// IsEmpty no recognised property
func (p TwinPatch) IsEmpty() bool {
	return p.WakeTime == nil && p.WindowMinutes == nil && p.AlarmEnabled == nil &&
		p.CloudEnabled == nil && p.MonitoringActive == nil
}

// TouchesAlarm the patch changes the alarm aggregate
func (p TwinPatch) TouchesAlarm() bool {
	return p.WakeTime != nil || p.WindowMinutes != nil || p.AlarmEnabled != nil
}
