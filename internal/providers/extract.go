package providers

import (
	"strconv"
	"strings"
)

// Providers disagree on where job ids and result URLs live in their
// responses. Each list is probed in order and the first hit wins; a dot
// separates path segments and a numeric segment indexes into an array.
var (
	jobIDPaths = []string{
		"request_id",
		"requestId",
		"id",
		"task_id",
		"data.id",
	}

	resultURLPaths = []string{
		"output.url",
		"output.0",
		"output.0.url",
		"result.url",
		"images.0.url",
		"images.0",
		"image.url",
		"video.url",
		"data.url",
		"url",
	}
)

// ExtractJobID probes a submit response for the async job identifier.
func ExtractJobID(payload map[string]any) (string, bool) {
	return probePaths(payload, jobIDPaths)
}

// ExtractResultURL probes a completed response for the media URL.
func ExtractResultURL(payload map[string]any) (string, bool) {
	return probePaths(payload, resultURLPaths)
}

func probePaths(payload map[string]any, paths []string) (string, bool) {
	for _, path := range paths {
		if s, ok := lookupPath(payload, path); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func lookupPath(payload map[string]any, path string) (string, bool) {
	var cur any = payload
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return "", false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return "", false
			}
			cur = node[idx]
		default:
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}
