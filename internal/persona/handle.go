package persona

import (
	"regexp"
	"strconv"
	"strings"
)

// Reserved personas keep a fixed handle and avatar color.
var reserved = map[string]struct {
	handle string
	color  string
}{
	"ただすめん":  {handle: "@tadasumen", color: "#ffedd5"},
	"ケンタ兄さん": {handle: "@kenta_b", color: "#fecdd3"},
}

const (
	letters          = "abcdefghijklmnopqrstuvwxyz"
	maxBaseLength    = 18
	maxSuffixedBase  = 15
	maxHandleLength  = 20
	fallbackBase     = "user"
	fallbackUsername = "random_user"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	disallowed    = regexp.MustCompile(`[^a-z0-9_]`)
	edgeUnders    = regexp.MustCompile(`^_+|_+$`)
	underRun      = regexp.MustCompile(`__+`)
)

// Handle derives an @handle from a display name. Reserved names map to
// fixed handles; every other name gets a randomized handle that is
// sometimes based on the name and sometimes carries a numeric suffix.
func (m *Minter) Handle(displayName string) string {
	if r, ok := reserved[displayName]; ok {
		return r.handle
	}

	derived := sanitize(whitespaceRun.ReplaceAllString(foldWidth(strings.ToLower(displayName)), "_"))

	m.mu.Lock()
	defer m.mu.Unlock()

	var base string
	useRandomBase := m.rng.Float64() < 0.5
	if !useRandomBase && len(derived) >= 3 && len(derived) <= maxSuffixedBase {
		base = derived
	} else {
		base = m.randomLettersLocked(4, 10)
	}
	if base == "" || base == "_" {
		base = fallbackBase
	}

	if len(base) > maxBaseLength {
		base = base[:maxBaseLength]
	}
	base = strings.TrimSuffix(base, "_")
	if base == "" || base == "_" {
		base = fallbackBase
	}

	username := base
	if m.rng.Float64() < 0.6 {
		if len(username) > maxSuffixedBase {
			username = username[:maxSuffixedBase]
		}
		username += "_" + strconv.Itoa(100+m.rng.IntN(900))
	} else if len(username) < 4 {
		username = m.randomLettersLocked(4, 8)
	}

	username = sanitize(username)
	if username == "" || username == "_" {
		username = fallbackUsername
	}
	if len(username) > maxHandleLength {
		username = username[:maxHandleLength]
	}
	return "@" + username
}

func (m *Minter) randomLettersLocked(minLen, maxLen int) string {
	n := minLen + m.rng.IntN(maxLen-minLen+1)
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(letters[m.rng.IntN(len(letters))])
	}
	return b.String()
}

// foldWidth maps fullwidth ASCII letters and digits to their halfwidth forms.
func foldWidth(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'Ａ' && r <= 'Ｚ', r >= 'ａ' && r <= 'ｚ', r >= '０' && r <= '９':
			return r - 0xFEE0
		default:
			return r
		}
	}, s)
}

func sanitize(s string) string {
	s = disallowed.ReplaceAllString(s, "")
	s = edgeUnders.ReplaceAllString(s, "")
	return underRun.ReplaceAllString(s, "_")
}
