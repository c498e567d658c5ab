package engine

import (
	"strings"

	"baton/internal/store"
)

const sectionSeparator = "\n\n---\n\n"

// AggregateResults renders the combined output of a finished group as a
// single document. Sections are grouped by job type, types ordered by first
// appearance in the group and instances by creation order within each type;
// failed jobs contribute nothing. When a type appears more than once in the
// group its sections carry letter suffixes ("review A", "review B") assigned
// by creation order across all jobs of that type, so a failed job still
// consumes its letter and the surviving sections keep stable names. A group
// whose jobs all failed aggregates to the empty string.
//
// Jobs must be passed in creation order (ascending Seq), which is how the
// store returns them.
func AggregateResults(jobs []store.Job) string {
	perType := make(map[store.JobType]int)
	var typeOrder []store.JobType
	for _, j := range jobs {
		if perType[j.Type] == 0 {
			typeOrder = append(typeOrder, j.Type)
		}
		perType[j.Type]++
	}

	var sections []string
	for _, t := range typeOrder {
		letter := 0
		for _, j := range jobs {
			if j.Type != t {
				continue
			}
			suffix := letter
			letter++
			if j.Status != store.JobStatusComplete {
				continue
			}
			label := string(t)
			if perType[t] > 1 {
				label += " " + sectionLetter(suffix)
			}
			body := ""
			if j.Result != nil {
				body = *j.Result
			}
			sections = append(sections, "## "+label+"\n\n"+body)
		}
	}
	return strings.Join(sections, sectionSeparator)
}

// sectionLetter turns 0, 1, 2, ... into A, B, C, ... and wraps to AA, AB
// past Z.
func sectionLetter(i int) string {
	s := ""
	for {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	return s
}
