package backfill

import "strings"

// Cloud Run job ids allow at most 63 lowercase characters
const maxJobNameLen = 63

// JobName derives a valid Cloud Run job id from a dbt selector. Graph
// operators are dropped and underscores become hyphens; over-long names are
// shortened by repeatedly halving the longest word, which keeps every model
// name recognizable.
func JobName(selector string) string {
	name := strings.ToLower(selector)
	name = strings.ReplaceAll(name, "+", "")
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.Trim(name, "-")
	return shorten(name, maxJobNameLen)
}

func shorten(name string, max int) string {
	for len(name) > max {
		words := strings.Split(name, "-")
		longest := 0
		for i, w := range words {
			if len(w) > len(words[longest]) {
				longest = i
			}
		}
		if len(words[longest]) <= 1 {
			return name[:max]
		}
		words[longest] = words[longest][:len(words[longest])/2]
		name = strings.Join(words, "-")
	}
	return name
}
