package dispatch

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nosdois/duet/internal/store"
)

// applyMentions rewrites "@FirstName" callouts for known partners into the
// "@<phone>" tag WhatsApp renders as a real mention, and returns the JIDs to
// attach as the mention list. Text without partner callouts passes through
// unchanged with a nil mention list.
func applyMentions(segment string, couple *store.Couple) (string, []string) {
	if couple == nil {
		return segment, nil
	}

	var mentions []string
	for _, p := range []struct{ name, phone string }{
		{couple.UserName, couple.UserPhone},
		{couple.PartnerName, couple.PartnerPhone},
	} {
		first := firstName(p.name)
		if first == "" || p.phone == "" {
			continue
		}
		tag := "@" + first
		if !containsFold(segment, tag) {
			continue
		}
		segment = replaceFold(segment, tag, "@"+p.phone)
		mentions = append(mentions, p.phone+"@s.whatsapp.net")
	}

	return segment, mentions
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func containsFold(s, substr string) bool {
	for i := 0; i < len(s); {
		if _, ok := foldPrefixLen(s[i:], substr); ok {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return false
}

// replaceFold replaces every case-insensitive occurrence of old with new.
// Match offsets are tracked rune by rune in s itself: lowercasing can change
// a string's byte length (İ shrinks, Ⱥ grows), so positions found in a
// lowered copy must never be used to slice the original.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if n, ok := foldPrefixLen(s[i:], old); ok {
			b.WriteString(new)
			i += n
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

// foldPrefixLen reports whether s starts with a case-insensitive match of
// target, and the byte length that match occupies in s.
func foldPrefixLen(s, target string) (int, bool) {
	i := 0
	for _, tr := range target {
		if i >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[i:])
		if sr != tr && unicode.ToLower(sr) != unicode.ToLower(tr) {
			return 0, false
		}
		i += size
	}
	return i, true
}
