package stream

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	sentenceEnd = regexp.MustCompile(`[。！？.!?]\s*`)
	minorPunct  = regexp.MustCompile(`[，,；;：:]\s*`)
)

// SplitSegments cuts content into typing-effect segments, preferring
// paragraph breaks, then sentence boundaries, then minor punctuation,
// then fixed-width chunks. Concatenating the returned segments always
// reproduces content byte for byte.
func SplitSegments(content string) []string {
	if content == "" {
		return nil
	}

	var segments []string
	for _, paragraph := range strings.SplitAfter(content, "\n\n") {
		if paragraph == "" {
			continue
		}
		if strings.TrimSpace(paragraph) == "" {
			// Separator runs stay attached to the previous segment so
			// nothing is lost on reassembly.
			if n := len(segments); n > 0 {
				segments[n-1] += paragraph
				continue
			}
			segments = append(segments, paragraph)
			continue
		}
		if utf8.RuneCountInString(paragraph) > 100 {
			segments = append(segments, splitAfter(sentenceEnd, paragraph)...)
			continue
		}
		segments = append(segments, paragraph)
	}

	total := utf8.RuneCountInString(content)
	if len(segments) < 3 && total > 100 {
		finer := make([]string, 0, len(segments))
		for _, seg := range segments {
			if utf8.RuneCountInString(seg) > 50 {
				finer = append(finer, splitAfter(minorPunct, seg)...)
				continue
			}
			finer = append(finer, seg)
		}
		segments = finer
	}

	if len(segments) < 3 && total > 80 {
		segments = chunkRunes(content, min(40, total/3))
	}
	return segments
}

// splitAfter splits s after every match of re, keeping all text
// including the matched delimiters.
func splitAfter(re *regexp.Regexp, s string) []string {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return []string{s}
	}
	out := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		out = append(out, s[prev:loc[1]])
		prev = loc[1]
	}
	if prev < len(s) {
		out = append(out, s[prev:])
	}
	return out
}

func chunkRunes(s string, size int) []string {
	if size < 1 {
		size = 1
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
