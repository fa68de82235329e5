package flow

import "strings"

// Failure markers scanned for in step results. Collaborators sometimes
// report a failure as a successful return value containing an error
// description; such results must be promoted to real failures so they
// never become the next step's prompt input.
var errorMarkers = []string{
	"执行出错",
	"处理您的请求时出现错误",
	"错误:",
	"错误：",
	"error:",
	"exception",
	"traceback (most recent call last)",
	"panic:",
}

// LooksLikeError reports whether a step's textual result describes a
// failure. Heuristic by nature: the marker list is the single place the
// vocabulary lives, keep it that way.
func LooksLikeError(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, marker := range errorMarkers {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}
