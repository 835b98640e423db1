package logger

import (
	"strconv"
	"strings"
	"sync"
)

// ratioSampler admits the first num events of every den-sized window. It
// thins per-message receipt logs on busy chats while keeping a steady sample
// in the output.
type ratioSampler struct {
	mu   sync.Mutex
	num  int
	den  int
	seen int
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set reconfigures the ratio. Non-positive values disable sampling so every
// event passes.
func (s *ratioSampler) Set(num, den int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if num <= 0 || den <= 0 {
		s.num, s.den, s.seen = 0, 0, 0
		return
	}
	if num > den {
		num = den
	}
	s.num, s.den, s.seen = num, den, 0
}

// Allow reports whether the current event falls inside the admitted part of
// the window.
func (s *ratioSampler) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.num <= 0 || s.den <= 0 {
		return true
	}
	pos := s.seen % s.den
	s.seen++
	return pos < s.num
}

// parseRatioSpec understands "n/d" and a bare "d" meaning 1/d. A zero or
// malformed spec yields 0,0 which disables sampling.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if numPart, denPart, ok := strings.Cut(spec, "/"); ok {
		num, errN := strconv.Atoi(strings.TrimSpace(numPart))
		den, errD := strconv.Atoi(strings.TrimSpace(denPart))
		if errN != nil || errD != nil {
			return 0, 0
		}
		return num, den
	}
	if den, err := strconv.Atoi(spec); err == nil && den > 0 {
		return 1, den
	}
	return 0, 0
}
