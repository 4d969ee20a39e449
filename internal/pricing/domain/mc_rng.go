package domain

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// SequenceKind 随机序列类型
type SequenceKind int

const (
	SequencePseudoRandom   SequenceKind = iota // 伪随机
	SequenceLowDiscrepancy                     // Halton 低差异序列
)

func (k SequenceKind) String() string {
	switch k {
	case SequencePseudoRandom:
		return "pseudorandom"
	case SequenceLowDiscrepancy:
		return "lowdiscrepancy"
	default:
		return fmt.Sprintf("SequenceKind(%d)", int(k))
	}
}

// ParseSequenceKind 解析配置中的序列类型
func ParseSequenceKind(s string) (SequenceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pseudorandom", "pseudo-random", "prng":
		return SequencePseudoRandom, nil
	case "lowdiscrepancy", "low-discrepancy", "halton":
		return SequenceLowDiscrepancy, nil
	default:
		return 0, fmt.Errorf("%w: unknown sequence kind %q", ErrConfiguration, s)
	}
}

// AllowsErrorEstimate 该序列的样本是否独立同分布，可给出误差估计
func (k SequenceKind) AllowsErrorEstimate() bool {
	return k == SequencePseudoRandom
}

// RandomSequenceGenerator 按维度产生标准正态序列，返回的切片在下次调用前有效
type RandomSequenceGenerator interface {
	Dimension() int
	NextSequence() []float64
}

// NewSequenceGenerator 为第 stream 个（共 streams 个）并行工作者创建序列生成器。
// 伪随机序列使用派生子种子，Halton 序列按 stream 交错取点。
func (k SequenceKind) NewSequenceGenerator(dimension int, seed uint64, stream, streams int) (RandomSequenceGenerator, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: sequence dimension must be positive, got %d", ErrConfiguration, dimension)
	}
	if streams <= 0 || stream < 0 || stream >= streams {
		return nil, fmt.Errorf("%w: invalid stream %d of %d", ErrConfiguration, stream, streams)
	}
	switch k {
	case SequencePseudoRandom:
		return newPseudoRandomGenerator(dimension, deriveSeed(seed, uint64(stream))), nil
	case SequenceLowDiscrepancy:
		return newHaltonGenerator(dimension, uint64(stream), uint64(streams)), nil
	default:
		return nil, fmt.Errorf("%w: unknown sequence kind %d", ErrConfiguration, int(k))
	}
}

// deriveSeed SplitMix64 混合父种子与流编号，得到互不相关的子种子
func deriveSeed(parent, stream uint64) uint64 {
	x := parent ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

type pseudoRandomGenerator struct {
	rng *rand.Rand
	buf []float64
}

func newPseudoRandomGenerator(dimension int, seed uint64) *pseudoRandomGenerator {
	return &pseudoRandomGenerator{
		rng: rand.New(rand.NewSource(seed)),
		buf: make([]float64, dimension),
	}
}

func (g *pseudoRandomGenerator) Dimension() int {
	return len(g.buf)
}

func (g *pseudoRandomGenerator) NextSequence() []float64 {
	for i := range g.buf {
		g.buf[i] = g.rng.NormFloat64()
	}
	return g.buf
}

// haltonGenerator 第 i 维取第 i 个素数为底的根式反演，经逆正态变换。
// 下标从 1 开始以跳过全零点。
type haltonGenerator struct {
	bases  []uint64
	index  uint64
	stride uint64
	buf    []float64
}

func newHaltonGenerator(dimension int, start, stride uint64) *haltonGenerator {
	return &haltonGenerator{
		bases:  firstPrimes(dimension),
		index:  start + 1,
		stride: stride,
		buf:    make([]float64, dimension),
	}
}

func (g *haltonGenerator) Dimension() int {
	return len(g.buf)
}

func (g *haltonGenerator) NextSequence() []float64 {
	for i, b := range g.bases {
		g.buf[i] = distuv.UnitNormal.Quantile(radicalInverse(g.index, b))
	}
	g.index += g.stride
	return g.buf
}

func radicalInverse(n, base uint64) float64 {
	inv := 1.0 / float64(base)
	f := inv
	r := 0.0
	for n > 0 {
		r += float64(n%base) * f
		n /= base
		f *= inv
	}
	return r
}

func firstPrimes(n int) []uint64 {
	primes := make([]uint64, 0, n)
	for c := uint64(2); len(primes) < n; c++ {
		prime := true
		for _, p := range primes {
			if p*p > c {
				break
			}
			if c%p == 0 {
				prime = false
				break
			}
		}
		if prime {
			primes = append(primes, c)
		}
	}
	return primes
}
