package warehouse

import farm "github.com/dgryski/go-farm"

// Dataset split partitions.
const (
	SplitTrain = "TRAIN"
	SplitTest  = "TEST"
)

// splitBuckets and trainBuckets give the approximate 80/20 assignment.
const (
	splitBuckets = 10
	trainBuckets = 8
)

// SplitFor deterministically assigns a session to TRAIN or TEST. It uses the
// same FarmHash fingerprint the warehouse applies in SQL, so a session id
// lands in the same partition no matter which substrate computes it. The
// remainder is taken before the sign is stripped: ABS over the raw signed
// fingerprint overflows on MinInt64, while the remainder is always within
// one bucket of zero.
func SplitFor(sessionID string) string {
	if splitBucket(int64(farm.Fingerprint64([]byte(sessionID)))) < trainBuckets {
		return SplitTrain
	}
	return SplitTest
}

func splitBucket(v int64) int64 {
	r := v % splitBuckets
	if r < 0 {
		r = -r
	}
	return r
}

// splitExpression is the SQL form of SplitFor.
func splitExpression() string {
	return "CASE WHEN ABS(MOD(FARM_FINGERPRINT(session_id), 10)) < 8 THEN 'TRAIN' ELSE 'TEST' END"
}
