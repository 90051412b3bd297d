package mpu9250

// DMP memory map for the MotionDriver 6.12 firmware image.
const (
	DMP_CODE_SIZE       = 3062
	DMP_START_ADDRESS   = 0x0400
	DMP_SAMPLE_RATE     = 200
	MAX_DMP_SAMPLE_RATE = 200

	CFG_LP_QUAT            = 2712
	CFG_27                 = 2742
	CFG_20                 = 2224
	CFG_FIFO_ON_EVENT      = 2690
	CFG_15                 = 2727
	CFG_8                  = 2718
	CFG_6                  = 2753
	CFG_MOTION_BIAS        = 1208
	CFG_ANDROID_ORIENT_INT = 1853
	CFG_GYRO_RAW_DATA      = 2722
	FCFG_1                 = 1062
	FCFG_2                 = 1066
	FCFG_3                 = 1088
	FCFG_7                 = 1073

	D_0_22  = 22 + 512
	D_0_104 = 104
	D_1_36  = 256 + 36
	D_1_40  = 256 + 40
	D_1_44  = 256 + 44
	D_1_72  = 256 + 72
	D_1_79  = 256 + 79
	D_1_88  = 256 + 88
	D_1_90  = 256 + 90
	D_1_92  = 256 + 92
	D_1_218 = 256 + 218

	DMP_TAP_THX  = 256 + 212
	DMP_TAP_THY  = 256 + 216
	DMP_TAP_THZ  = 256 + 220
	DMP_TAPW_MIN = 256 + 222

	D_PEDSTD_STEPCTR = 768 + 0x60
	D_PEDSTD_TIMECTR = 964

	GYRO_SF = 46850825 * 200 / DMP_SAMPLE_RATE

	TAP_X   = 0x01
	TAP_Y   = 0x02
	TAP_Z   = 0x04
	TAP_XYZ = 0x07

	DMP_INT_GESTURE    = 0x01
	DMP_INT_CONTINUOUS = 0x02
)

// DMP instruction bytes written into the firmware configuration slots.
const (
	DINA0C = 0x0c
	DINA20 = 0x20
	DINA26 = 0x26
	DINA28 = 0x28
	DINA2C = 0x2c
	DINA30 = 0x30
	DINA36 = 0x36
	DINA38 = 0x38
	DINA46 = 0x46
	DINA4C = 0x4c
	DINA56 = 0x56
	DINA66 = 0x66
	DINA6C = 0x6c
	DINA76 = 0x76
	DINA80 = 0x80
	DINA90 = 0x90
	DINAAA = 0xaa
	DINAAB = 0xab
	DINAC0 = 0xb0
	DINAC2 = 0xb4
	DINAC9 = 0xc9
	DINACD = 0xcd
	DINADF = 0xdf
	DINAF1 = 0xf1
	DINAF2 = 0xf2
	DINAFE = 0xfe
	DINBC0 = 0xc0
	DINBC2 = 0xc2
	DINBC4 = 0xc4
	DINBC6 = 0xc6
)
