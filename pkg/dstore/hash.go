package dstore

import (
	"strings"

	"github.com/google/uuid"
)

// HashID shards an effective id into nested directory segments so that no
// directory accumulates more than 1000 direct entries as ids grow. The
// store's keying mode picks the scheme; the id's spelling never does, so
// a uuid that happens to contain only decimal digits still shards as a
// uuid.
//
// ByID takes decimal ids. Ids below 1000 all collapse into a single
// "000" segment; larger ids are zero-padded to a multiple of three
// digits, the last group (1000 files per directory) is dropped, and each
// remaining 3-digit group becomes one directory level, most significant
// first. ByUUID shards as the first three 2-hex-character pairs of the
// dash-stripped uuid.
//
// The function is pure: the same id always yields the same segments, on
// any host, across restarts. Installations rely on that when data
// directories move between machines.
func HashID(id string, by StoreBy) ([]string, error) {
	if by == ByUUID {
		u, err := uuid.Parse(id)
		if err != nil {
			return nil, &InvalidIdentifierError{ID: id}
		}
		hex := strings.Replace(u.String(), "-", "", -1)
		return []string{hex[0:2], hex[2:4], hex[4:6]}, nil
	}

	if !isDecimal(id) {
		return nil, &InvalidIdentifierError{ID: id}
	}
	if len(id) < 4 {
		return []string{"000"}, nil
	}
	padded := strings.Repeat("0", (3-len(id)%3)%3) + id
	padded = padded[:len(padded)-3]
	segments := make([]string, 0, len(padded)/3)
	for i := 0; i < len(padded); i += 3 {
		segments = append(segments, padded[i:i+3])
	}
	return segments, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
