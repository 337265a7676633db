package codec

// On-disk records, little endian and packed. binary.Read/Write honour the
// field order and skip blank fields, so the structs are the layout.

const (
	magicLen = 16

	headerSizeV1 = 64
	headerSizeV2 = 128
	calBlockSize = 64
	imuSizeV1    = 32
	imuSizeV3    = 44
	gpsSize      = 36
)

var magics = map[string]int{
	"WRC_COACH_V1": 1,
	"WRC_COACH_V2": 2,
	"WRC_COACH_V3": 3,
}

type headerV1 struct {
	Magic        [magicLen]byte
	IMUCount     uint32
	GPSCount     uint32
	SessionStart float64
	Orientation  uint8
	DemoMode     uint8
	Catch        float32
	Finish       float32
	_            [22]byte
}

// headerV2 is shared by V2 and V3. SessionStart sits unaligned at offset 29.
type headerV2 struct {
	Magic          [magicLen]byte
	IMUCount       uint32
	GPSCount       uint32
	CalCount       uint32
	HasCalibration uint8
	SessionStart   float64
	Orientation    uint8
	DemoMode       uint8
	Catch          float32
	Finish         float32
	_              [81]byte
}

type calBlock struct {
	PitchOffset      float32
	RollOffset       float32
	YawOffset        float32
	LateralOffset    float32
	GravityMagnitude float32
	Samples          uint32
	Variance         float32
	Timestamp        float64
	_                [28]byte
}

type imuRecord struct {
	T                      float64
	Ax, Ay, Az, Gx, Gy, Gz float32
}

// imuRecordV3 repeats the V1 fields; binary cannot set through an
// unexported embedded struct.
type imuRecordV3 struct {
	T                      float64
	Ax, Ay, Az, Gx, Gy, Gz float32
	Mx, My, Mz             float32
}

type gpsRecord struct {
	T, Lat, Lon              float64
	Speed, Heading, Accuracy float32
}

func magicFor(version int) [magicLen]byte {
	var m [magicLen]byte
	for name, v := range magics {
		if v == version {
			copy(m[:], name)
		}
	}
	return m
}
