package mpu9250

// MPU-9250 register map (MPU-6500 core) and AK8963 magnetometer registers.
const (
	MPU_ADDRESS  = 0x68
	MPU_ADDRESS1 = 0x68
	MPU_ADDRESS2 = 0x69

	MPUREG_SELF_TEST_X_GYRO   = 0x00
	MPUREG_SELF_TEST_Y_GYRO   = 0x01
	MPUREG_SELF_TEST_Z_GYRO   = 0x02
	MPUREG_SELF_TEST_X_ACCEL  = 0x0D
	MPUREG_SELF_TEST_Y_ACCEL  = 0x0E
	MPUREG_SELF_TEST_Z_ACCEL  = 0x0F
	MPUREG_SMPLRT_DIV         = 0x19
	MPUREG_CONFIG             = 0x1A
	MPUREG_GYRO_CONFIG        = 0x1B
	MPUREG_ACCEL_CONFIG       = 0x1C
	MPUREG_ACCEL_CONFIG_2     = 0x1D
	MPUREG_LP_ACCEL_ODR       = 0x1E
	MPUREG_WOM_THR            = 0x1F
	MPUREG_FIFO_EN            = 0x23
	MPUREG_I2C_MST_CTRL       = 0x24
	MPUREG_I2C_SLV0_ADDR      = 0x25
	MPUREG_I2C_SLV0_REG       = 0x26
	MPUREG_I2C_SLV0_CTRL      = 0x27
	MPUREG_I2C_SLV1_ADDR      = 0x28
	MPUREG_I2C_SLV1_REG       = 0x29
	MPUREG_I2C_SLV1_CTRL      = 0x2A
	MPUREG_I2C_SLV4_CTRL      = 0x34
	MPUREG_INT_PIN_CFG        = 0x37
	MPUREG_INT_ENABLE         = 0x38
	MPUREG_DMP_INT_STATUS     = 0x39
	MPUREG_INT_STATUS         = 0x3A
	MPUREG_ACCEL_XOUT_H       = 0x3B
	MPUREG_TEMP_OUT_H         = 0x41
	MPUREG_GYRO_XOUT_H        = 0x43
	MPUREG_EXT_SENS_DATA_00   = 0x49
	MPUREG_I2C_SLV0_DO        = 0x63
	MPUREG_I2C_SLV1_DO        = 0x64
	MPUREG_I2C_MST_DELAY_CTRL = 0x67
	MPUREG_ACCEL_INTEL_CTRL   = 0x69
	MPUREG_USER_CTRL          = 0x6A
	MPUREG_PWR_MGMT_1         = 0x6B
	MPUREG_PWR_MGMT_2         = 0x6C
	MPUREG_BANK_SEL           = 0x6D
	MPUREG_MEM_START_ADDR     = 0x6E
	MPUREG_MEM_R_W            = 0x6F
	MPUREG_PRGM_START_H       = 0x70
	MPUREG_FIFO_COUNTH        = 0x72
	MPUREG_FIFO_R_W           = 0x74
	MPUREG_WHOAMI             = 0x75

	MPU9250_WHOAMI = 0x71
	MPU9255_WHOAMI = 0x73

	MPU_BANK_SIZE   = 256
	MPU_MAX_FIFO    = 1024
	MPU_TEMP_SENS   = 321
	MPU_TEMP_OFFSET = 0

	// Configuration bits
	BIT_I2C_MST_VDDIO  = 0x80
	BIT_FIFO_EN        = 0x40
	BIT_DMP_EN         = 0x80
	BIT_FIFO_RST       = 0x04
	BIT_DMP_RST        = 0x08
	BIT_FIFO_OVERFLOW  = 0x10
	BIT_DATA_RDY_EN    = 0x01
	BIT_DMP_INT_EN     = 0x02
	BIT_MOT_INT_EN     = 0x40
	BITS_FSR           = 0x18
	BITS_LPF           = 0x07
	BIT_FIFO_SIZE_1024 = 0x40
	BIT_H_RESET        = 0x80
	BIT_SLEEP          = 0x40
	BIT_SLAVE_EN       = 0x80
	BIT_I2C_READ       = 0x80
	BIT_AUX_IF_EN      = 0x20
	BIT_ACTL           = 0x80
	BIT_LATCH_EN       = 0x20
	BIT_ANY_RD_CLR     = 0x10
	BIT_BYPASS_EN      = 0x02
	BIT_LPA_CYCLE      = 0x20
	BIT_STBY_XA        = 0x20
	BIT_STBY_YA        = 0x10
	BIT_STBY_ZA        = 0x08
	BIT_STBY_XG        = 0x04
	BIT_STBY_YG        = 0x02
	BIT_STBY_ZG        = 0x01
	BIT_STBY_XYZA      = BIT_STBY_XA | BIT_STBY_YA | BIT_STBY_ZA
	BIT_STBY_XYZG      = BIT_STBY_XG | BIT_STBY_YG | BIT_STBY_ZG
	BIT_SLAVE0_DLY_EN  = 0x01
	BIT_SLAVE1_DLY_EN  = 0x02
	BIT_RAW_RDY_INT    = 0x01
	BITS_SELF_TEST_EN  = 0xE0

	INV_CLK_INTERNAL = 0x00
	INV_CLK_PLL      = 0x01

	// Full scale and filter settings, written into bits 3-4 / 0-2.
	BITS_FS_250DPS  = 0x00
	BITS_FS_500DPS  = 0x08
	BITS_FS_1000DPS = 0x10
	BITS_FS_2000DPS = 0x18
	BITS_FS_2G      = 0x00
	BITS_FS_4G      = 0x08
	BITS_FS_8G      = 0x10
	BITS_FS_16G     = 0x18

	BITS_DLPF_CFG_256HZ_NOLPF2 = 0x00
	BITS_DLPF_CFG_188HZ        = 0x01
	BITS_DLPF_CFG_98HZ         = 0x02
	BITS_DLPF_CFG_42HZ         = 0x03
	BITS_DLPF_CFG_20HZ         = 0x04
	BITS_DLPF_CFG_10HZ         = 0x05
	BITS_DLPF_CFG_5HZ          = 0x06
	BITS_DLPF_CFG_2100HZ_NOLPF = 0x07

	// Low power accelerometer output data rates (LP_ACCEL_ODR)
	INV_LPA_1_25HZ = 0x02
	INV_LPA_2_5HZ  = 0x03
	INV_LPA_5HZ    = 0x04
	INV_LPA_10HZ   = 0x05
	INV_LPA_20HZ   = 0x06
	INV_LPA_40HZ   = 0x07
	INV_LPA_80HZ   = 0x08
	INV_LPA_160HZ  = 0x09
	INV_LPA_320HZ  = 0x0A
	INV_LPA_640HZ  = 0x0B

	// AK8963 magnetometer
	AK8963_I2C_ADDR        = 0x0C
	AK8963_WIA             = 0x00
	AK8963_ST1             = 0x02
	AK8963_HXL             = 0x03
	AK8963_ST2             = 0x09
	AK8963_CNTL1           = 0x0A
	AK8963_ASTC            = 0x0C
	AK8963_ASAX            = 0x10
	AK8963_WHOAMI          = 0x48
	AK8963_MAX_SAMPLE_RATE = 100
	AK8963_FSR             = 4915

	AKM_DATA_READY         = 0x01
	AKM_DATA_OVERRUN       = 0x02
	AKM_OVERFLOW           = 0x08
	AKM_DATA_ERROR         = 0x40
	AKM_BIT_SELF_TEST      = 0x40
	AKM_HIGH_SENS          = 0x10
	AKM_POWER_DOWN         = 0x00 | AKM_HIGH_SENS
	AKM_SINGLE_MEASUREMENT = 0x01 | AKM_HIGH_SENS
	AKM_FUSE_ROM_ACCESS    = 0x0F | AKM_HIGH_SENS
	AKM_MODE_SELF_TEST     = 0x08 | AKM_HIGH_SENS
)

// SensorMask selects sensors; the gyro and accel bits match the FIFO_EN register.
type SensorMask byte

const (
	INV_X_GYRO      SensorMask = 0x40
	INV_Y_GYRO      SensorMask = 0x20
	INV_Z_GYRO      SensorMask = 0x10
	INV_XYZ_GYRO               = INV_X_GYRO | INV_Y_GYRO | INV_Z_GYRO
	INV_XYZ_ACCEL   SensorMask = 0x08
	INV_XYZ_COMPASS SensorMask = 0x01
)

// Interrupt status bits as returned by IntStatus.
const (
	MPU_INT_STATUS_DATA_READY    = 0x0001
	MPU_INT_STATUS_DMP           = 0x0002
	MPU_INT_STATUS_PLL_READY     = 0x0004
	MPU_INT_STATUS_I2C_MST       = 0x0008
	MPU_INT_STATUS_FIFO_OVERFLOW = 0x0010
	MPU_INT_STATUS_ZMOT          = 0x0020
	MPU_INT_STATUS_MOT           = 0x0040
	MPU_INT_STATUS_FREE_FALL     = 0x0080
	MPU_INT_STATUS_DMP_0         = 0x0100
	MPU_INT_STATUS_DMP_1         = 0x0200
	MPU_INT_STATUS_DMP_2         = 0x0400
	MPU_INT_STATUS_DMP_3         = 0x0800
	MPU_INT_STATUS_DMP_4         = 0x1000
	MPU_INT_STATUS_DMP_5         = 0x2000
)
