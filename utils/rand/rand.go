package rand

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	mathrand "math/rand"
	"sync"
	"time"
)

func generateSeed(data []byte) int64 {
	sum256 := sha256.Sum256(data)
	return int64(binary.LittleEndian.Uint64(sum256[0:8]))
}

// New returns a deterministic PRNG seeded from data. It is not safe for concurrent use.
func New(data []byte) *mathrand.Rand {
	return mathrand.New(mathrand.NewSource(generateSeed(data)))
}

// Seed re-seeds an existing deterministic PRNG with new data.
func Seed(rng *mathrand.Rand, data []byte) {
	rng.Seed(generateSeed(data))
}

var (
	processSeedOnce sync.Once
	processSeed     []byte
)

// ProcessSeed is fixed for the lifetime of the process and differs between processes.
// Node rotation is derived from it so that one client spreads load the same way on
// every call while two clients do not hammer the same node first.
func ProcessSeed() []byte {
	processSeedOnce.Do(func() {
		processSeed = make([]byte, 16)
		if _, err := cryptorand.Read(processSeed); err != nil {
			binary.LittleEndian.PutUint64(processSeed, uint64(time.Now().UnixNano()))
		}
	})
	return processSeed
}

// threadSafeRand wraps crypto/rand for concurrent callers.
type threadSafeRand struct {
	lock sync.Mutex
}

func (t *threadSafeRand) Int63n(n int64) int64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	if n <= 0 {
		panic("invalid argument to Int63n")
	}
	result, err := cryptorand.Int(cryptorand.Reader, big.NewInt(n))
	if err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return result.Int64()
}

func (t *threadSafeRand) Float64() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	// 53 random bits fill the float64 mantissa uniformly
	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(1<<53))
	if err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return float64(n.Int64()) / float64(int64(1<<53))
}

func (t *threadSafeRand) Uint64() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}

var protocolRand = &threadSafeRand{}

func Intn(n int) int {
	return int(protocolRand.Int63n(int64(n)))
}

func Int63n(n int64) int64 {
	return protocolRand.Int63n(n)
}

func Float64() float64 {
	return protocolRand.Float64()
}

func Uint64() uint64 {
	return protocolRand.Uint64()
}

// Jitter returns a duration drawn uniformly from [d/2, d].
func Jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(protocolRand.Int63n(int64(d-half)+1))
}
