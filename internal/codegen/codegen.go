// Package codegen derives short dictionary codes from Chinese labels.
package codegen

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
)

var firstLetter = func() pinyin.Args {
	args := pinyin.NewArgs()
	args.Style = pinyin.FirstLetter
	return args
}()

func isHan(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fff
}

// Encode builds a code from name: letters and digits of any script are kept
// as they are, each CJK ideograph contributes the upper-cased first letter of
// its pinyin, and punctuation, whitespace and symbols are dropped.
//
//	"2人校正" -> "2RXZ"
//	"Y2后装"  -> "Y2HZ"
func Encode(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case isHan(r):
			letters := pinyin.Pinyin(string(r), firstLetter)
			if len(letters) > 0 && len(letters[0]) > 0 {
				b.WriteString(strings.ToUpper(letters[0][0]))
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Dedupe makes codes unique in place order: the first occurrence of a code is
// kept and later ones get "a", "b", "c"... appended. A suffixed code that
// collides with an existing one moves on to the next letter.
func Dedupe(codes []string) []string {
	out := make([]string, len(codes))
	taken := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		taken[code] = struct{}{}
	}
	seen := make(map[string]int, len(codes))
	for i, code := range codes {
		n, dup := seen[code]
		if !dup {
			seen[code] = 0
			out[i] = code
			continue
		}
		candidate := code
		for {
			candidate = code + suffix(n)
			n++
			if _, exists := taken[candidate]; !exists {
				break
			}
		}
		seen[code] = n
		taken[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}

// suffix maps 0 -> "a", 25 -> "z", 26 -> "aa".
func suffix(n int) string {
	s := ""
	for n >= 0 {
		s = string(rune('a'+n%26)) + s
		n = n/26 - 1
	}
	return s
}

// Sequential returns n codes "{prefix}{i}" with i starting at 1 and
// zero-padded to width digits: Sequential("W", 2, 3) = [W001 W002].
func Sequential(prefix string, n, width int) []string {
	if n <= 0 {
		return nil
	}
	codes := make([]string, n)
	for i := range codes {
		codes[i] = fmt.Sprintf("%s%0*d", prefix, width, i+1)
	}
	return codes
}
