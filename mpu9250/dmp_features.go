package mpu9250

// FeatureMask is the DMP feature bit set used by the InvenSense motion driver.
type FeatureMask uint16

const (
	DMP_FEATURE_TAP            FeatureMask = 0x001
	DMP_FEATURE_ANDROID_ORIENT FeatureMask = 0x002
	DMP_FEATURE_LP_QUAT        FeatureMask = 0x004
	DMP_FEATURE_PEDOMETER      FeatureMask = 0x008
	DMP_FEATURE_6X_LP_QUAT     FeatureMask = 0x010
	DMP_FEATURE_GYRO_CAL       FeatureMask = 0x020
	DMP_FEATURE_SEND_RAW_ACCEL FeatureMask = 0x040
	DMP_FEATURE_SEND_RAW_GYRO  FeatureMask = 0x080
	DMP_FEATURE_SEND_CAL_GYRO  FeatureMask = 0x100
	DMP_FEATURE_SEND_ANY_GYRO              = DMP_FEATURE_SEND_RAW_GYRO | DMP_FEATURE_SEND_CAL_GYRO
)

// QuatMode selects which low-power quaternion the DMP computes. The modes are exclusive.
type QuatMode int

const (
	QuatNone  QuatMode = iota
	Quat3Axis          // gyro only
	Quat6Axis          // gyro and accel
)

func (q QuatMode) String() string {
	switch q {
	case Quat3Axis:
		return "3-axis"
	case Quat6Axis:
		return "6-axis"
	}
	return "none"
}

// Features is a resolved DMP feature set: one quaternion mode plus independent toggles.
type Features struct {
	Quat          QuatMode
	Tap           bool
	AndroidOrient bool
	Pedometer     bool
	GyroCal       bool
	SendRawAccel  bool
	SendRawGyro   bool
	SendCalGyro   bool
}

// ResolveFeatures turns a feature mask into a Features value.
// If both quaternion bits are requested the 3-axis quaternion wins.
func ResolveFeatures(mask FeatureMask) Features {
	f := Features{
		Tap:           mask&DMP_FEATURE_TAP != 0,
		AndroidOrient: mask&DMP_FEATURE_ANDROID_ORIENT != 0,
		Pedometer:     mask&DMP_FEATURE_PEDOMETER != 0,
		GyroCal:       mask&DMP_FEATURE_GYRO_CAL != 0,
		SendRawAccel:  mask&DMP_FEATURE_SEND_RAW_ACCEL != 0,
		SendRawGyro:   mask&DMP_FEATURE_SEND_RAW_GYRO != 0,
		SendCalGyro:   mask&DMP_FEATURE_SEND_CAL_GYRO != 0,
	}
	switch {
	case mask&DMP_FEATURE_LP_QUAT != 0:
		f.Quat = Quat3Axis
	case mask&DMP_FEATURE_6X_LP_QUAT != 0:
		f.Quat = Quat6Axis
	}
	return f
}

// Mask returns the feature bits for f. At most one quaternion bit is ever set.
func (f Features) Mask() FeatureMask {
	var m FeatureMask
	switch f.Quat {
	case Quat3Axis:
		m |= DMP_FEATURE_LP_QUAT
	case Quat6Axis:
		m |= DMP_FEATURE_6X_LP_QUAT
	}
	flags := []struct {
		on  bool
		bit FeatureMask
	}{
		{f.Tap, DMP_FEATURE_TAP}, {f.AndroidOrient, DMP_FEATURE_ANDROID_ORIENT},
		{f.Pedometer, DMP_FEATURE_PEDOMETER}, {f.GyroCal, DMP_FEATURE_GYRO_CAL},
		{f.SendRawAccel, DMP_FEATURE_SEND_RAW_ACCEL}, {f.SendRawGyro, DMP_FEATURE_SEND_RAW_GYRO},
		{f.SendCalGyro, DMP_FEATURE_SEND_CAL_GYRO},
	}
	for _, fl := range flags {
		if fl.on {
			m |= fl.bit
		}
	}
	return m
}

func (f Features) sendAnyGyro() bool {
	return f.SendRawGyro || f.SendCalGyro
}

func (f Features) gestures() bool {
	return f.Tap || f.AndroidOrient
}
