package model

import (
	"regexp"
	"strconv"
	"strings"
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9_.+-]+$`)

// ValidID reports whether a named submission id can be embedded in a file name.
func ValidID(id string) bool {
	return safeID.MatchString(id) && !strings.HasPrefix(id, ".")
}

// ProgramName derives the program file stem for one submission variant.
//
//	absent id   participant-assignment
//	named id    participant-assignment#id
//	indexed id  participant-n-assignment
func ProgramName(participant, assignment string, id SubmissionID) string {
	switch id.Kind {
	case IDNamed:
		return participant + "-" + assignment + "#" + id.Name
	case IDIndexed:
		return participant + "-" + strconv.Itoa(id.Index) + "-" + assignment
	default:
		return participant + "-" + assignment
	}
}
